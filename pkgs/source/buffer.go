// Package source owns the program text being tokenized. The tokenizer
// rewrites the buffer in place when it expands a define, so the buffer
// is mutable and growable; every live cursor into it is an index, never
// a pointer, and survives reallocation.
package source

import (
	"fmt"
	"os"

	"github.com/xmk-lang/xmk/pkgs/errors"
)

// Sentinel terminates the buffer. Scanning code may rely on it instead
// of bounds-checking every byte read.
const Sentinel = 0x00

// Buffer holds the full program text plus a trailing sentinel.
type Buffer struct {
	data []byte // program text, data[len(data)-1] == Sentinel
}

// Load reads the whole file at path and appends the sentinel.
func Load(path string) (*Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("cannot read input file %q", path), err)
	}
	return New(string(raw)), nil
}

// New creates a buffer over the given program text.
func New(text string) *Buffer {
	data := make([]byte, 0, len(text)+1)
	data = append(data, text...)
	data = append(data, Sentinel)
	return &Buffer{data: data}
}

// Len returns the number of program bytes, excluding the sentinel.
func (b *Buffer) Len() int {
	return len(b.data) - 1
}

// Byte returns the byte at offset i. Reading at Len() yields the
// sentinel; anything past it panics.
func (b *Buffer) Byte(i int) byte {
	return b.data[i]
}

// String returns the current program text without the sentinel.
func (b *Buffer) String() string {
	return string(b.data[:len(b.data)-1])
}

// ExpandAt splices replacement in place of the replacedLen bytes
// starting at offset. The buffer grows or shrinks as needed; callers
// must re-derive any saved positions from their offsets, which remain
// valid for everything before the patch point.
func (b *Buffer) ExpandAt(offset, replacedLen int, replacement string) {
	if offset < 0 || replacedLen < 0 || offset+replacedLen > b.Len() {
		panic(fmt.Sprintf("source: splice [%d,%d) out of range 0..%d", offset, offset+replacedLen, b.Len()))
	}
	tail := b.data[offset+replacedLen:] // includes sentinel
	patched := make([]byte, 0, offset+len(replacement)+len(tail))
	patched = append(patched, b.data[:offset]...)
	patched = append(patched, replacement...)
	patched = append(patched, tail...)
	b.data = patched
}
