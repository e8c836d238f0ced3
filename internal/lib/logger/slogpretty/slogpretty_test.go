package slogpretty_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"ozzus/check-dispatcher/internal/lib/logger/slogpretty"
)

func TestPrettyHandler(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slogpretty.LevelTrace},
	}
	log := slog.New(opts.NewPrettyHandler(&buf)).With(slog.String("component", "pool"))

	log.Log(t.Context(), slogpretty.LevelTrace, "popped job", slog.Int("worker", 2))

	out := buf.String()
	assert.Contains(t, out, "TRACE:")
	assert.Contains(t, out, "popped job")
	assert.Contains(t, out, `"component": "pool"`)
	assert.Contains(t, out, `"worker": 2`)
}

func TestLevelName(t *testing.T) {
	assert.Equal(t, "TRACE", slogpretty.LevelName(slogpretty.LevelTrace))
	assert.Equal(t, "DEBUG", slogpretty.LevelName(slog.LevelDebug))
	assert.Equal(t, "ERROR", slogpretty.LevelName(slog.LevelError))
}
