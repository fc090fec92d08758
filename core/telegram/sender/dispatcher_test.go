package sender

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestEnqueueToIsolatesRecipients(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, RetryBackoff: time.Millisecond})

	var (
		mu        sync.Mutex
		delivered []int64
	)
	for _, id := range []int64{1, 2, 3} {
		err := d.EnqueueTo(context.Background(), "notify.moderator", id, func() error {
			if id == 2 {
				return tele.ErrBlockedByUser
			}
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, id)
			return nil
		})
		require.NoError(t, err)
	}
	d.Close()

	require.ElementsMatch(t, []int64{1, 3}, delivered)
	require.Equal(t, Stats{Sent: 2, Blocked: 1}, d.Stats())
}

func TestServerErrorsAreRetried(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return &tele.Error{Code: 502, Description: "Bad Gateway"}
		}
		return nil
	}))
	d.Close()

	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, Stats{Sent: 1, Retried: 1}, d.Stats())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return &tele.Error{Code: 400, Description: "Bad Request: chat not found"}
	}))
	d.Close()

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, Stats{Failed: 1}, d.Stats())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()

	err := d.EnqueueTo(context.Background(), "notify.moderator", 1, func() error { return nil })
	require.ErrorIs(t, err, ErrQueueClosed)
	require.Error(t, d.Enqueue(context.Background(), "send.text", "sendMessage", nil))
}

func TestBlockedRecipientIsNotRetried(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	var calls atomic.Int32
	require.NoError(t, d.EnqueueTo(context.Background(), "notify.moderator", 5, func() error {
		calls.Add(1)
		return tele.ErrBlockedByUser
	}))
	d.Close()

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, Stats{Blocked: 1}, d.Stats())
}

func TestBackoffHonoursFloodWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, RetryBackoff: 100 * time.Millisecond})
	defer d.Close()

	require.Equal(t, 200*time.Millisecond, d.backoff(2, &tele.Error{Code: 502}))
	require.Equal(t, 3*time.Second, d.backoff(1, tele.FloodError{RetryAfter: 3}))
}

func TestQueueFull(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return nil }))
	require.ErrorIs(t, d.Enqueue(context.Background(), "send.text", "sendMessage", func() error { return nil }), ErrQueueFull)

	close(release)
	d.Close()
	require.Equal(t, uint64(2), d.Stats().Sent)
}
