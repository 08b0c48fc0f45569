//go:build !wasip1

package contract

func newLinearArena(size int) *Arena {
	return NewArena(size)
}
