package contract

// Option configures the process-wide codec installed by Register.
type Option func(*options)

type options struct {
	arenaSize int
}

// WithArenaSize sets the number of bytes reserved for host buffers and results.
func WithArenaSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.arenaSize = size
		}
	}
}

// std is the module's single codec. The exports drive it; one module
// instance runs one call at a time, so it needs no locking.
var std struct {
	opts    options
	handler Handler
	arena   *Arena
	codec   *Codec
}

// Register installs the handler behind the module's exports. Contract
// binaries call it from init so it runs before the host's first _alloc.
func Register(h Handler, opts ...Option) {
	o := options{arenaSize: DefaultArenaSize}
	for _, opt := range opts {
		opt(&o)
	}
	std.opts = o
	std.handler = h
	std.arena = nil
	std.codec = nil
}

func stdArena() *Arena {
	if std.arena == nil {
		size := std.opts.arenaSize
		if size == 0 {
			size = DefaultArenaSize
		}
		std.arena = newLinearArena(size)
	}
	return std.arena
}

func stdCodec() *Codec {
	if std.codec == nil {
		std.codec = NewCodec(stdArena(), std.handler)
	}
	return std.codec
}
