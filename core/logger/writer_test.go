package logger

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type failingSink struct{}

func (failingSink) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestAsyncWriterFansOutToAllSinks(t *testing.T) {
	var a, b bytes.Buffer
	w := newAsyncWriter([]io.Writer{&a, nil, &b}, 16)

	require.NoError(t, w.Write([]byte("event=registration.created\n")))
	require.NoError(t, w.Write([]byte("event=voucher.redeem\n")))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	want := "event=registration.created\nevent=voucher.redeem\n"
	require.Equal(t, want, a.String())
	require.Equal(t, want, b.String())
}

func TestAsyncWriterRejectsWritesAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := newAsyncWriter([]io.Writer{&buf}, 0)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.Write([]byte("late\n")), errWriterClosed)
	require.ErrorIs(t, w.Flush(), errWriterClosed)
	require.Empty(t, buf.String())
}

func TestAsyncWriterKeepsFirstSinkError(t *testing.T) {
	w := newAsyncWriter([]io.Writer{failingSink{}}, 0)
	require.NoError(t, w.Write([]byte("x\n")))
	require.EqualError(t, w.Flush(), "disk full")
	require.EqualError(t, w.Write([]byte("y\n")), "disk full")
	require.EqualError(t, w.Close(), "disk full")
}
