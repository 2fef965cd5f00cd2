// ghash.go - Incremental GHASH.

// Package ghash implements the GCM universal hash as an incremental,
// phased accumulator: associated data first, then ciphertext, then a single
// finalization that folds in the bit lengths of both regions.
package ghash

import (
	"encoding/binary"

	"github.com/Hobbybyte/aead/blockwise"
	"github.com/Hobbybyte/aead/gf128"
	"github.com/Hobbybyte/aead/internal/mem"
)

// BlockSize is the GHASH block size in bytes.
const BlockSize = 16

type phase int

const (
	phaseAAD phase = iota
	phaseCipher
	phaseFinalized
)

// Accumulator holds in-flight GHASH state. It is single use: once Finalize
// has run, the state is erased and every further call panics. Misuse of the
// phase discipline (associated data after ciphertext has started) also
// panics, as it is a programming error rather than an operational failure.
type Accumulator struct {
	h   gf128.Element
	y   gf128.Element
	mul gf128.Multiplier

	pending [BlockSize]byte
	used    int

	lenAAD    uint64
	lenCipher uint64
	phase     phase
}

// New returns an accumulator keyed by the 16 byte hash subkey h. The GF128
// multiply strategy is resolved here and bound for the accumulator's
// lifetime.
func New(h []byte) *Accumulator {
	if len(h) != BlockSize {
		panic("ghash: invalid subkey length")
	}
	return &Accumulator{
		h:   gf128.FromBytes(h),
		mul: gf128.NewMultiplier(),
	}
}

func (a *Accumulator) foldBlock(block []byte) {
	a.y = a.mul(gf128.Add(a.y, gf128.FromBytes(block)), a.h)
}

// pad zero-fills and folds any pending partial block.
func (a *Accumulator) pad() {
	if a.used == 0 {
		return
	}
	for i := a.used; i < BlockSize; i++ {
		a.pending[i] = 0
	}
	a.foldBlock(a.pending[:])
	a.used = 0
}

// WriteAAD folds associated data. Legal only before the first WriteCipher.
func (a *Accumulator) WriteAAD(p []byte) {
	if a.phase != phaseAAD {
		panic("ghash: WriteAAD after ciphertext")
	}
	a.lenAAD += uint64(len(p))
	blockwise.Accumulate(a.pending[:], &a.used, p, a.foldBlock)
}

// WriteCipher folds ciphertext. The first call pads out any partial
// associated data block and moves the accumulator to the ciphertext phase.
func (a *Accumulator) WriteCipher(p []byte) {
	switch a.phase {
	case phaseAAD:
		a.pad()
		a.phase = phaseCipher
	case phaseFinalized:
		panic("ghash: WriteCipher after Finalize")
	}
	a.lenCipher += uint64(len(p))
	blockwise.Accumulate(a.pending[:], &a.used, p, a.foldBlock)
}

// Finalize pads any pending block, folds the 8 byte big-endian bit lengths
// of the associated data and ciphertext regions, and writes the 16 byte
// digest to out. The accumulator state, subkey included, is erased.
func (a *Accumulator) Finalize(out []byte) {
	if a.phase == phaseFinalized {
		panic("ghash: Finalize after Finalize")
	}
	if len(out) != BlockSize {
		panic("ghash: Finalize: len(out)")
	}
	a.pad()
	a.phase = phaseFinalized

	var lengths [BlockSize]byte
	binary.BigEndian.PutUint64(lengths[0:8], a.lenAAD*8)
	binary.BigEndian.PutUint64(lengths[8:16], a.lenCipher*8)
	a.foldBlock(lengths[:])

	a.y.Bytes(out)

	a.h = gf128.Element{}
	a.y = gf128.Element{}
	mem.Wipe(a.pending[:])
}
