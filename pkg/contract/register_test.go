package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterInstallsHandler(t *testing.T) {
	Register(incr, WithArenaSize(512))
	t.Cleanup(func() { Register(nil) })

	c := stdCodec()
	assert.Same(t, c, stdCodec(), "codec is created once")
	assert.Same(t, stdArena(), c.Arena())
	assert.Equal(t, uint32(512), c.Arena().Capacity())

	sa, sl := write(t, c, `{"counter":3}`)
	res, err := c.Handle(sa, sl, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, `{"counter":4}`, string(read(t, c, res.Addr, res.Len)))
}

func TestRegisterResetsState(t *testing.T) {
	Register(incr)
	first := stdArena()
	assert.Equal(t, uint32(DefaultArenaSize), first.Capacity())

	Register(incr, WithArenaSize(-1))
	t.Cleanup(func() { Register(nil) })
	assert.NotSame(t, first, stdArena())
	assert.Equal(t, uint32(DefaultArenaSize), stdArena().Capacity(), "non-positive sizes keep the default")
}
