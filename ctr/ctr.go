// ctr.go - Counter mode keystream with a configurable counter window.

// Package ctr turns a block cipher into an incremental keystream generator.
// Unlike a generic full-width counter, the counter field's byte offset and
// width within the block are parameters: GCM confines its counter to the
// last 4 bytes of the 16 byte block, and that configuration must wrap inside
// the window without disturbing the rest of the block.
package ctr

import (
	"crypto/cipher"

	"github.com/Hobbybyte/aead/internal/mem"
)

// Stream is an incremental counter mode keystream over a block cipher. It
// is not safe for concurrent use.
type Stream struct {
	block   cipher.Block
	counter []byte
	stream  []byte
	used    int
	offset  int
	width   int
}

// New returns a Stream whose counter occupies the whole block, starting at
// iv.
func New(block cipher.Block, iv []byte) *Stream {
	return NewWindow(block, iv, 0, block.BlockSize())
}

// NewWindow returns a Stream that increments only width bytes starting at
// offset; the rest of iv rides along unchanged. iv must be one block long.
func NewWindow(block cipher.Block, iv []byte, offset, width int) *Stream {
	blockSize := block.BlockSize()
	if len(iv) != blockSize {
		panic("ctr: invalid iv length")
	}
	if width <= 0 || offset < 0 || offset+width > blockSize {
		panic("ctr: invalid counter window")
	}
	s := &Stream{
		block:   block,
		counter: make([]byte, blockSize),
		stream:  make([]byte, blockSize),
		used:    blockSize,
		offset:  offset,
		width:   width,
	}
	copy(s.counter, iv)
	return s
}

// next produces the keystream block for the current counter, then
// increments the counter big-endian within its window.
func (s *Stream) next() {
	s.block.Encrypt(s.stream, s.counter)
	s.used = 0
	for i := s.offset + s.width - 1; i >= s.offset; i-- {
		s.counter[i]++
		if s.counter[i] != 0 {
			break
		}
	}
}

// XORKeyStream xors src with the keystream into dst, consuming keystream
// incrementally across calls. dst must be at least as long as src; dst and
// src may overlap exactly.
func (s *Stream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("ctr: output smaller than input")
	}
	for len(src) > 0 {
		if s.used == len(s.stream) {
			s.next()
		}
		n := len(s.stream) - s.used
		if n > len(src) {
			n = len(src)
		}
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ s.stream[s.used+i]
		}
		s.used += n
		dst, src = dst[n:], src[n:]
	}
}

// Wipe erases the counter and any buffered keystream.
func (s *Stream) Wipe() {
	mem.Wipe(s.counter)
	mem.Wipe(s.stream)
	s.used = len(s.stream)
}
