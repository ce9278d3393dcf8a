package logger

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type capture struct {
	buf    *bytes.Buffer
	errBuf *bytes.Buffer
	w      *lineWriter
}

func newCapture(t *testing.T, format logFormat, stacks bool) (*slog.Logger, *capture) {
	t.Helper()
	c := &capture{buf: &bytes.Buffer{}, errBuf: &bytes.Buffer{}}
	c.w = newLineWriter([]io.Writer{c.buf}, []io.Writer{c.errBuf})
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   c.w,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		stacks:   stacks,
	})
	return slog.New(h), c
}

// lines closes the writer and returns the stream and errors-only output.
func (c *capture) lines(t *testing.T) (string, string) {
	t.Helper()
	if err := c.w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := c.w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(c.buf.String()), strings.TrimSpace(c.errBuf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, c := newCapture(t, formatKV, false)
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", "app"), slog.LevelInfo, "test.event",
		slog.String("status", "ok"),
		slog.String("cause", "unit"),
	)
	line, _ := c.lines(t)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, c := newCapture(t, formatJSON, false)
	ctx := WithRID(Background(), "rid-json")
	ctx = WithUpdateMeta(ctx, 11, 22, 33)

	LogEvent(ctx, log.With("component", "engine"), slog.LevelError, "engine.turn.failed",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "PERSISTENCE_ERROR"),
	)
	line, _ := c.lines(t)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"engine"`, `"event":"engine.turn.failed"`, `"status":"fail"`, `"rid":"rid-json"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	rawRID := "123:456:789"
	t.Run("kv", func(t *testing.T) {
		log, c := newCapture(t, formatKV, false)
		LogEvent(WithRID(Background(), rawRID), log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
		line, _ := c.lines(t)
		if !strings.Contains(line, "rid="+CompactRID(rawRID)) {
			t.Fatalf("expected compact rid, got %s", line)
		}
		if strings.Contains(line, "rid_full=") {
			t.Fatalf("rid_full should be omitted in KV output, got %s", line)
		}
	})
	t.Run("json", func(t *testing.T) {
		log, c := newCapture(t, formatJSON, false)
		LogEvent(WithRID(Background(), rawRID), log, slog.LevelInfo, "rid.test", slog.String("status", "ok"))
		line, _ := c.lines(t)
		if !strings.Contains(line, `"rid":"`+CompactRID(rawRID)+`"`) {
			t.Fatalf("expected compact rid in JSON, got %s", line)
		}
		if !strings.Contains(line, `"rid_full":"`+rawRID+`"`) {
			t.Fatalf("expected rid_full in JSON output, got %s", line)
		}
		if !strings.Contains(line, `"ts_unix_nano"`) {
			t.Fatalf("expected ts_unix_nano in JSON output, got %s", line)
		}
	})
}

func TestStructuredHandlerBotSessionContext(t *testing.T) {
	log, c := newCapture(t, formatKV, false)
	ctx := WithBot(Background(), "bot-1")
	ctx = WithSession(ctx, "sess-9")
	LogEvent(ctx, log.With("component", "engine"), slog.LevelInfo, "engine.turn",
		slog.String("block_id", "b2"),
		slog.String("status", "ok"),
	)
	line, _ := c.lines(t)
	bot := strings.Index(line, "bot_id=bot-1")
	sess := strings.Index(line, "session_id=sess-9")
	block := strings.Index(line, "block_id=b2")
	if bot == -1 || sess == -1 || block == -1 {
		t.Fatalf("missing context fields in %s", line)
	}
	if !(bot < sess && sess < block) {
		t.Fatalf("unexpected key order in %s", line)
	}
}

func TestErrorsSinkOnlyReceivesWarnAndAbove(t *testing.T) {
	log, c := newCapture(t, formatKV, false)
	ctx := Background()
	LogEvent(ctx, log, slog.LevelInfo, "turn.ok")
	LogEvent(ctx, log, slog.LevelWarn, "turn.slow")
	LogEvent(ctx, log, slog.LevelError, "turn.failed")

	stream, errorsOnly := c.lines(t)
	if n := strings.Count(stream, "\n") + 1; n != 3 {
		t.Fatalf("stream lines = %d, want 3:\n%s", n, stream)
	}
	if strings.Contains(errorsOnly, "turn.ok") {
		t.Fatalf("info line leaked into errors sink:\n%s", errorsOnly)
	}
	if !strings.Contains(errorsOnly, "turn.slow") || !strings.Contains(errorsOnly, "turn.failed") {
		t.Fatalf("errors sink missing lines:\n%s", errorsOnly)
	}
}

func TestStacksOnlyOnErrors(t *testing.T) {
	log, c := newCapture(t, formatJSON, true)
	log.LogAttrs(Background(), slog.LevelWarn, "lock.busy")
	log.LogAttrs(Background(), slog.LevelError, "turn.failed")

	stream, _ := c.lines(t)
	parts := strings.Split(stream, "\n")
	if len(parts) != 2 {
		t.Fatalf("want 2 lines, got %d:\n%s", len(parts), stream)
	}
	if strings.Contains(parts[0], `"stack"`) {
		t.Fatalf("warn line carries a stack: %s", parts[0])
	}
	if !strings.Contains(parts[1], `"stack":"`) || !strings.Contains(parts[1], "handler_test.go") {
		t.Fatalf("error line lacks a call-site stack: %s", parts[1])
	}
}

func TestKeyedSamplerIsPerKey(t *testing.T) {
	s := newKeyedSampler(1, 3)
	got := make([]bool, 0, 6)
	for i := 0; i < 6; i++ {
		got = append(got, s.Allow("bot-a"))
	}
	want := []bool{true, false, false, true, false, false}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("bot-a samples = %v, want %v", got, want)
	}
	if !s.Allow("bot-b") {
		t.Fatal("first event for a new key should pass")
	}

	s.Configure(0, 0)
	for i := 0; i < 5; i++ {
		if !s.Allow("bot-a") {
			t.Fatal("disabled sampler must pass everything")
		}
	}
}

func TestParseSampleRatio(t *testing.T) {
	cases := map[string][2]int{
		"":      {0, 0},
		"10":    {1, 10},
		"2/5":   {2, 5},
		" 3/4 ": {3, 4},
		"0":     {0, 0},
		"x/5":   {0, 0},
		"1/0":   {0, 0},
	}
	for in, want := range cases {
		k, n := parseSampleRatio(in)
		if k != want[0] || n != want[1] {
			t.Errorf("parseSampleRatio(%q) = %d/%d, want %d/%d", in, k, n, want[0], want[1])
		}
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "no button" }
func (codedErr) Code() string  { return "RESOLUTION_FAILURE" }

func TestErrAttrs(t *testing.T) {
	if attrs := ErrAttrs(nil); attrs != nil {
		t.Fatalf("nil error gave %v", attrs)
	}
	plain := ErrAttrs(errors.New("boom"))
	if len(plain) != 1 || plain[0].Value.String() != "boom" {
		t.Fatalf("plain error attrs = %v", plain)
	}
	wrapped := ErrAttrs(fmt.Errorf("turn: %w", codedErr{}))
	if len(wrapped) != 2 || wrapped[1].Key != "err_code" || wrapped[1].Value.String() != "RESOLUTION_FAILURE" {
		t.Fatalf("coded error attrs = %v", wrapped)
	}
}
