// mem.go - Erasure of secret-bearing buffers.

// Package mem provides scoped erasure helpers for buffers that held key
// material or other secrets.
package mem

// Wipe zeroizes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// WipeLimbs zeroizes x.
func WipeLimbs(x []uint32) {
	for i := range x {
		x[i] = 0
	}
}
