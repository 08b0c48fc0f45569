package wasm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGuestOutputForwardsLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	out := NewGuestOutput(zap.New(core), "stderr", zapcore.WarnLevel)

	fmt.Fprint(out, "panic: boom\ngorout")
	fmt.Fprint(out, "ine 1 [running]:\n")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "panic: boom", entries[0].ContextMap()["line"])
		assert.Equal(t, "goroutine 1 [running]:", entries[1].ContextMap()["line"])
		assert.Equal(t, "stderr", entries[1].ContextMap()["stream"])
	}
	assert.Equal(t, "panic: boom\ngoroutine 1 [running]:\n", out.Tail())
}

func TestGuestOutputKeepsTail(t *testing.T) {
	out := NewGuestOutput(zap.NewNop(), "stderr", zapcore.WarnLevel)

	fmt.Fprint(out, strings.Repeat("a", stderrTailBytes))
	fmt.Fprint(out, "end\n")

	tail := out.Tail()
	assert.Len(t, tail, stderrTailBytes)
	assert.True(t, strings.HasSuffix(tail, "end\n"))

	out.Reset()
	assert.Empty(t, out.Tail())
}
