// gf128.go - GF(2^128) arithmetic.

// Package gf128 implements arithmetic over GF(2^128) with the reduction
// polynomial x^128 + x^7 + x^2 + x + 1, using the bit-reflected big-endian
// element convention of GHASH.
//
// Two interchangeable multiply strategies are provided: a portable
// bit-serial shift-and-reduce routine, and a wide routine built from 64 bit
// carry-less products synthesized out of masked integer multiplies. Both are
// branch-free on secret data and produce bit-identical results for all
// inputs.
package gf128

import (
	"encoding/binary"
	"math/bits"

	"golang.org/x/sys/cpu"
)

// Size is the byte length of a serialized field element.
const Size = 16

// Element is a value in GF(2^128). The bits are stored in the reflected
// big-endian order used by GHASH:
//
//	the coefficient of x^0 is low >> 63
//	the coefficient of x^63 is low & 1
//	the coefficient of x^64 is high >> 63
//	the coefficient of x^127 is high & 1
type Element struct {
	low, high uint64
}

// FromBytes loads a 16 byte big-endian serialized element.
func FromBytes(b []byte) Element {
	return Element{
		low:  binary.BigEndian.Uint64(b[0:8]),
		high: binary.BigEndian.Uint64(b[8:16]),
	}
}

// Bytes serializes e into out, which must be 16 bytes.
func (e Element) Bytes(out []byte) {
	binary.BigEndian.PutUint64(out[0:8], e.low)
	binary.BigEndian.PutUint64(out[8:16], e.high)
}

// Add returns x + y. Addition in a characteristic 2 field is XOR.
func Add(x, y Element) Element {
	return Element{low: x.low ^ y.low, high: x.high ^ y.high}
}

// Double returns x multiplied by the polynomial x. In the reflected
// representation this is a right shift, with the reduction folded into the
// top byte of low.
func Double(x Element) Element {
	msb := x.high & 1
	var d Element
	d.high = x.high>>1 | x.low<<63
	d.low = x.low >> 1
	d.low ^= (0 - msb) & 0xe100000000000000
	return d
}

// Multiplier is a bound multiply strategy. The two concrete strategies are
// MulBitserial and MulWide.
type Multiplier func(x, y Element) Element

var hasWideMul = cpu.X86.HasPCLMULQDQ || cpu.ARM64.HasPMULL

// NewMultiplier resolves the multiply strategy for this CPU. The capability
// query happens once, at package init; callers bind the returned value for
// the lifetime of their context and never re-resolve it mid-operation.
func NewMultiplier() Multiplier {
	if hasWideMul {
		return MulWide
	}
	return MulBitserial
}

// MulBitserial returns x*y, consuming one coefficient of y per step. The
// per-step accumulation is mask-selected rather than branched.
func MulBitserial(x, y Element) Element {
	var z Element
	v := x
	for _, w := range [2]uint64{y.low, y.high} {
		for i := 0; i < 64; i++ {
			mask := uint64(int64(w) >> 63)
			z.low ^= v.low & mask
			z.high ^= v.high & mask
			v = Double(v)
			w <<= 1
		}
	}
	return z
}

// bmul64 returns the low 64 bits of the carry-less product of x and y. The
// operands are split into four interleaved combs so that the integer
// multiplies cannot carry across comb positions; the holes are masked off
// afterwards.
func bmul64(x, y uint64) uint64 {
	x0 := x & 0x1111111111111111
	x1 := x & 0x2222222222222222
	x2 := x & 0x4444444444444444
	x3 := x & 0x8888888888888888
	y0 := y & 0x1111111111111111
	y1 := y & 0x2222222222222222
	y2 := y & 0x4444444444444444
	y3 := y & 0x8888888888888888
	z0 := (x0 * y0) ^ (x1 * y3) ^ (x2 * y2) ^ (x3 * y1)
	z1 := (x0 * y1) ^ (x1 * y0) ^ (x2 * y3) ^ (x3 * y2)
	z2 := (x0 * y2) ^ (x1 * y1) ^ (x2 * y0) ^ (x3 * y3)
	z3 := (x0 * y3) ^ (x1 * y2) ^ (x2 * y1) ^ (x3 * y0)
	z0 &= 0x1111111111111111
	z1 &= 0x2222222222222222
	z2 &= 0x4444444444444444
	z3 &= 0x8888888888888888
	return z0 | z1 | z2 | z3
}

// MulWide returns x*y via three 128 bit carry-less Karatsuba products. The
// high halves are obtained by multiplying the bit-reversed operands, and the
// 256 bit product is folded back with shifts of the reduction polynomial.
func MulWide(x, y Element) Element {
	a1, a0 := x.low, x.high
	b1, b0 := y.low, y.high

	a0r := bits.Reverse64(a0)
	a1r := bits.Reverse64(a1)
	a2 := a0 ^ a1
	a2r := a0r ^ a1r

	b0r := bits.Reverse64(b0)
	b1r := bits.Reverse64(b1)
	b2 := b0 ^ b1
	b2r := b0r ^ b1r

	z0 := bmul64(a0, b0)
	z1 := bmul64(a1, b1)
	z2 := bmul64(a2, b2)
	z0h := bmul64(a0r, b0r)
	z1h := bmul64(a1r, b1r)
	z2h := bmul64(a2r, b2r)
	z2 ^= z0 ^ z1
	z2h ^= z0h ^ z1h
	z0h = bits.Reverse64(z0h) >> 1
	z1h = bits.Reverse64(z1h) >> 1
	z2h = bits.Reverse64(z2h) >> 1

	v0 := z0
	v1 := z0h ^ z2
	v2 := z1 ^ z2h
	v3 := z1h

	// Shift left one bit to account for the reflected convention, then
	// reduce modulo x^128 + x^7 + x^2 + x + 1.
	v3 = v3<<1 | v2>>63
	v2 = v2<<1 | v1>>63
	v1 = v1<<1 | v0>>63
	v0 = v0 << 1

	v2 ^= v0 ^ v0>>1 ^ v0>>2 ^ v0>>7
	v1 ^= v0<<63 ^ v0<<62 ^ v0<<57
	v3 ^= v1 ^ v1>>1 ^ v1>>2 ^ v1>>7
	v2 ^= v1<<63 ^ v1<<62 ^ v1<<57

	return Element{low: v3, high: v2}
}
