package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureLine(ctx context.Context, t *testing.T, format logFormat, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(handler).With("component", component), level, event, attrs...)
	require.NoError(t, aw.Flush())
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestKVOutputFollowsKeyOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-start")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	line := captureLine(ctx, t, formatKV, "service.registrations", slog.LevelInfo, "registration.created",
		slog.String("voucher", "FG-AB12CD"),
		slog.String("status", "ok"),
	)

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=service.registrations", "event=registration.created", "status=ok", "rid=rid-start"}
	require.GreaterOrEqual(t, len(tokens), len(expected), line)
	for i, prefix := range expected {
		require.True(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
	require.Contains(t, line, "voucher=FG-AB12CD")
}

func TestJSONOutputFollowsKeyOrder(t *testing.T) {
	ctx := WithRID(Background(), "rid-redeem")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	line := captureLine(ctx, t, formatJSON, "service.moderation", slog.LevelError, "voucher.redeem",
		slog.String("status", "fail"),
		slog.String("err", "connection refused"),
		slog.String("err_code", "OPERROR"),
	)

	require.True(t, strings.HasPrefix(line, "{"), line)
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"service.moderation"`, `"event":"voucher.redeem"`, `"status":"fail"`, `"rid":"rid-redeem"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		require.Greater(t, idx, pos, "%s out of order in %s", pref, line)
		pos = idx
	}
}

func TestKVOutputCompactsRID(t *testing.T) {
	raw := BuildRID(123, 456, 789)
	line := captureLine(WithRID(Background(), raw), t, formatKV, "tg", slog.LevelInfo, "handler.handled",
		slog.String("status", "ok"),
	)

	require.Contains(t, line, "rid="+CompactRID(raw))
	require.NotContains(t, line, "rid_full=")
}

func TestJSONOutputKeepsFullRID(t *testing.T) {
	raw := BuildRID(12, 34, 56)
	line := captureLine(WithRID(Background(), raw), t, formatJSON, "tg", slog.LevelInfo, "handler.handled",
		slog.String("status", "ok"),
	)

	require.Contains(t, line, `"rid":"`+CompactRID(raw)+`"`)
	require.Contains(t, line, `"rid_full":"`+raw+`"`)
	require.Contains(t, line, `"ts_unix_nano"`)
}

func TestBelowLevelIsDropped(t *testing.T) {
	line := captureLine(Background(), t, formatKV, "events", slog.LevelDebug, "event.published")
	require.Empty(t, line)
}

func TestDomainOutcomesSurviveNormalization(t *testing.T) {
	line := captureLine(Background(), t, formatKV, "service.moderation", slog.LevelInfo, "voucher.redeem",
		slog.String("outcome", "already_used"),
	)
	require.Contains(t, line, "outcome=already_used")

	line = captureLine(Background(), t, formatKV, "service.moderation", slog.LevelInfo, "voucher.redeem",
		slog.String("outcome", "exploded"),
	)
	require.NotContains(t, line, "outcome=")
}

func TestDurationKeys(t *testing.T) {
	require.Equal(t, "duration_ms", durationKey("duration"))
	require.Equal(t, "publish_duration_ms", durationKey("publish_duration"))
	require.Equal(t, "elapsed_ms", durationKey("elapsed_ms"))
	require.Equal(t, "wait_ms", durationKey("wait"))
}
