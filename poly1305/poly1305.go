// poly1305.go - Poly1305 one-time authenticator.

// Package poly1305 implements the Poly1305 message authentication code as a
// limb-oriented accumulator over the prime field modulo 2^130 - 5.
//
// The key is one-time: a (key, message) pair must never repeat. The MAC
// object itself is also one-time; Sum or Verify erases its state.
package poly1305

import (
	"crypto/subtle"

	"github.com/Hobbybyte/aead/blockwise"
	"github.com/Hobbybyte/aead/internal/mem"
)

const (
	// KeySize is the length of a Poly1305 key: r followed by s.
	KeySize = 32

	// TagSize is the length of an authentication tag.
	TagSize = 16

	// BlockSize is the internal block size.
	BlockSize = 16
)

// The accumulator uses 17 byte-wide limbs, covering 136 bits. 2^130 - 5
// occupies 2 bits of the top limb; the extra headroom keeps the carry
// ripples and the 2^130 = 5 fold simple.
const numLimbs = 17

// negP is -(2^130 - 5) in two's-complement limb form.
var negP = [numLimbs]uint32{
	0x05, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0xfc,
}

// MAC is an incremental Poly1305 authenticator.
type MAC struct {
	h [numLimbs]uint32
	r [numLimbs]uint32
	s [16]byte

	pending [BlockSize]byte
	used    int
	done    bool
}

// New returns a MAC keyed with the 32 byte one-time key. The first half is
// the multiplier r, clamped here; the second half is the final addend s,
// stored as-is.
func New(key *[KeySize]byte) *MAC {
	m := &MAC{}
	for i := 0; i < 16; i++ {
		m.r[i] = uint32(key[i])
	}
	// Clamp r: bytes 3, 7, 11 and 15 keep only their low 4 bits, bytes 4,
	// 8 and 12 lose their low 2 bits.
	m.r[3] &= 0x0f
	m.r[4] &= 0xfc
	m.r[7] &= 0x0f
	m.r[8] &= 0xfc
	m.r[11] &= 0x0f
	m.r[12] &= 0xfc
	m.r[15] &= 0x0f
	copy(m.s[:], key[16:])
	return m
}

// add adds x into h, rippling the carry across all 17 limbs. The carry out
// of the top limb is discarded, which is what the two's-complement
// subtraction in fullReduce relies on.
func add(h, x *[numLimbs]uint32) {
	var carry uint32
	for i := 0; i < numLimbs; i++ {
		carry += h[i] + x[i]
		h[i] = carry & 0xff
		carry >>= 8
	}
}

// minReduce ripples carries through the low 16 limbs, keeps 2 bits of the
// overflow in the top limb, and feeds the rest back in multiplied by 5
// (2^130 = 5 mod p). It is cheap and leaves x slightly unreduced; only
// fullReduce produces the canonical value.
func minReduce(x *[numLimbs]uint32) {
	var carry uint32
	for i := 0; i < 16; i++ {
		carry += x[i]
		x[i] = carry & 0xff
		carry >>= 8
	}
	carry += x[16]
	x[16] = carry & 0x03
	carry = 5 * (carry >> 2)
	for i := 0; i < 16; i++ {
		carry += x[i]
		x[i] = carry & 0xff
		carry >>= 8
	}
	x[16] += carry
}

// maskEq returns all ones when x == y and zero otherwise, without
// branching.
func maskEq(x, y uint32) uint32 {
	diff := x ^ y
	diffIsZero := ^diff & (diff - 1)
	return -(diffIsZero >> 31)
}

// fullReduce canonicalizes x modulo 2^130 - 5. The subtraction always
// happens; whether it is kept is decided by a mask on the resulting sign
// bit, never by a data-dependent branch.
func fullReduce(x *[numLimbs]uint32) {
	xsub := *x
	add(&xsub, &negP)

	negative := maskEq(xsub[16]&0x80, 0x80)
	positive := ^negative
	for i := 0; i < numLimbs; i++ {
		x[i] = (x[i] & negative) | (xsub[i] & positive)
	}
}

// mul sets x to x*y modulo a minimal reduction. Schoolbook convolution over
// the 17 limbs; terms above limb 16 are folded back through 2^130 = 5. The
// 5<<6 factor combines the fold by 5 with the 6 bit shift left that remains
// after indexing 17 limbs (136 bits) down from the 130 bit reduction point.
func mul(x, y *[numLimbs]uint32) {
	var out [numLimbs]uint32
	for i := 0; i < numLimbs; i++ {
		var accum uint32
		for j := 0; j <= i; j++ {
			accum += x[j] * y[i-j]
		}
		for j := i + 1; j < numLimbs; j++ {
			accum += (5 << 6) * x[j] * y[i+17-j]
		}
		out[i] = accum
	}
	minReduce(&out)
	*x = out
}

// block folds one prepared block (payload limbs plus the one marker) into
// the accumulator.
func (m *MAC) block(c *[numLimbs]uint32) {
	add(&m.h, c)
	mul(&m.h, &m.r)
}

// wholeBlock processes a full 16 byte block; the implicit one marker sits
// at limb 16.
func (m *MAC) wholeBlock(buf []byte) {
	var c [numLimbs]uint32
	for i := 0; i < BlockSize; i++ {
		c[i] = uint32(buf[i])
	}
	c[16] = 1
	m.block(&c)
}

// lastBlock processes the pending partial block. The block is zero padded,
// but the one marker lands at the first unused limb rather than limb 16;
// this is what domain-separates short blocks from full ones.
func (m *MAC) lastBlock() {
	var c [numLimbs]uint32
	for i := 0; i < m.used; i++ {
		c[i] = uint32(m.pending[i])
	}
	c[m.used] = 1
	m.block(&c)
}

// Write absorbs p into the MAC. It panics if the MAC has been finalized.
func (m *MAC) Write(p []byte) {
	if m.done {
		panic("poly1305: Write after Sum or Verify")
	}
	blockwise.Accumulate(m.pending[:], &m.used, p, m.wholeBlock)
}

func (m *MAC) finish(tag *[TagSize]byte) {
	if m.done {
		panic("poly1305: Sum or Verify called twice")
	}
	m.done = true

	if m.used > 0 {
		m.lastBlock()
	}

	fullReduce(&m.h)

	// s is added unclamped, with a zero 17th limb and no further
	// reduction.
	var s [numLimbs]uint32
	for i := 0; i < 16; i++ {
		s[i] = uint32(m.s[i])
	}
	add(&m.h, &s)

	for i := 0; i < TagSize; i++ {
		tag[i] = byte(m.h[i])
	}

	mem.WipeLimbs(m.h[:])
	mem.WipeLimbs(m.r[:])
	mem.WipeLimbs(s[:])
	mem.Wipe(m.s[:])
	mem.Wipe(m.pending[:])
	m.used = 0
}

// Sum finalizes the MAC, appends the 16 byte tag to b and returns the
// updated slice. The MAC state is erased and the MAC cannot be used again.
func (m *MAC) Sum(b []byte) []byte {
	var tag [TagSize]byte
	m.finish(&tag)
	return append(b, tag[:]...)
}

// Verify finalizes the MAC and compares the computed tag against tag in
// constant time. The MAC state is erased either way.
func (m *MAC) Verify(tag []byte) bool {
	var computed [TagSize]byte
	m.finish(&computed)
	ok := subtle.ConstantTimeCompare(computed[:], tag) == 1
	mem.Wipe(computed[:])
	return ok
}
