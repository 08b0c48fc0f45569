package wasm

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// stderrTailBytes is how much guest stderr an instance keeps for TrapError.
const stderrTailBytes = 4 << 10

// GuestOutput receives a WASI stream (stdout or stderr) from a contract.
//
// Contracts get no host functions, so their only way to say anything is
// writing to a file descriptor. Each complete line is forwarded to the
// logger, and the most recent bytes are kept so a trap can be reported
// together with the panic message the guest printed on its way down.
type GuestOutput struct {
	logger *zap.Logger
	level  zapcore.Level
	limit  int

	mu   sync.Mutex
	line []byte
	tail []byte
}

// NewGuestOutput creates a writer that logs guest lines at level.
func NewGuestOutput(logger *zap.Logger, stream string, level zapcore.Level) *GuestOutput {
	return &GuestOutput{
		logger: logger.With(zap.String("stream", stream)),
		level:  level,
		limit:  stderrTailBytes,
	}
}

// Write implements io.Writer.
func (o *GuestOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tail = append(o.tail, p...)
	if over := len(o.tail) - o.limit; over > 0 {
		o.tail = append(o.tail[:0], o.tail[over:]...)
	}

	o.line = append(o.line, p...)
	for {
		i := bytes.IndexByte(o.line, '\n')
		if i < 0 {
			break
		}
		o.emit(o.line[:i])
		o.line = o.line[i+1:]
	}
	if len(o.line) > o.limit {
		o.emit(o.line)
		o.line = nil
	}
	return len(p), nil
}

func (o *GuestOutput) emit(line []byte) {
	if len(line) == 0 {
		return
	}
	if ce := o.logger.Check(o.level, "Guest output"); ce != nil {
		ce.Write(zap.ByteString("line", line))
	}
}

// Tail returns the most recently written bytes.
func (o *GuestOutput) Tail() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return string(o.tail)
}

// Reset drops the retained bytes. Called after each successful call so a trap
// reports only what the failing call wrote.
func (o *GuestOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tail = o.tail[:0]
	o.line = o.line[:0]
}
