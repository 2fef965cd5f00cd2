// gcm.go - Galois/Counter Mode over a caller-supplied PRP.

// Package gcm implements GCM authenticated encryption over any 16 byte
// block cipher. The cipher.AEAD surface mirrors the standard library, with
// two deliberate extensions: nonces of any length are accepted (12 byte
// nonces take the fast counter derivation path, everything else is hashed),
// and tags may be truncated down to 2 bytes. Single byte tags are refused.
package gcm

import (
	"crypto/cipher"
	"crypto/subtle"
	"errors"

	"github.com/Hobbybyte/aead/ctr"
	"github.com/Hobbybyte/aead/ghash"
	"github.com/Hobbybyte/aead/internal/mem"
)

const (
	// BlockSize is the required PRP block size in bytes.
	BlockSize = 16

	// TagSize is the default and maximum tag length in bytes.
	TagSize = 16

	// MinTagSize is the smallest accepted tag length. The policy floor
	// rejects only single byte tags; anything from 2 bytes up is the
	// caller's tradeoff to make.
	MinTagSize = 2

	// NonceSize is the nonce length that takes the fast counter
	// derivation path.
	NonceSize = 12
)

var (
	// ErrOpen is returned when decryption fails authentication.
	ErrOpen = errors.New("gcm: message authentication failed")

	// ErrInvalidTagSize is returned for tag sizes outside (1, 16].
	ErrInvalidTagSize = errors.New("gcm: invalid tag size")

	// ErrInvalidNonceSize is returned for zero-length nonces.
	ErrInvalidNonceSize = errors.New("gcm: invalid nonce size")

	// ErrInvalidBlockSize is returned when the PRP block size is not 16
	// bytes.
	ErrInvalidBlockSize = errors.New("gcm: PRP block size is not 16 bytes")
)

// AEAD is a GCM instance bound to a block cipher, nonce size and tag size.
// It implements cipher.AEAD. Independent instances share no state; a single
// instance carries no mutable state across calls and may be used from
// multiple goroutines only if the underlying block cipher allows it.
type AEAD struct {
	block     cipher.Block
	nonceSize int
	tagSize   int
}

var _ cipher.AEAD = (*AEAD)(nil)

// New returns a GCM instance with the standard 12 byte nonce and 16 byte
// tag.
func New(block cipher.Block) (*AEAD, error) {
	return NewWithSizes(block, NonceSize, TagSize)
}

// NewWithTagSize returns a GCM instance producing tags truncated to
// tagSize bytes, 1 < tagSize <= 16.
func NewWithTagSize(block cipher.Block, tagSize int) (*AEAD, error) {
	return NewWithSizes(block, NonceSize, tagSize)
}

// NewWithNonceSize returns a GCM instance accepting nonces of nonceSize
// bytes. Sizes other than 12 fall back to deriving the initial counter by
// hashing the nonce.
func NewWithNonceSize(block cipher.Block, nonceSize int) (*AEAD, error) {
	return NewWithSizes(block, nonceSize, TagSize)
}

// NewWithSizes returns a GCM instance with both sizes chosen by the
// caller. Validation happens here, once, so the seal and open paths work
// only with known-good parameters.
func NewWithSizes(block cipher.Block, nonceSize, tagSize int) (*AEAD, error) {
	if block.BlockSize() != BlockSize {
		return nil, ErrInvalidBlockSize
	}
	if tagSize < MinTagSize || tagSize > TagSize {
		return nil, ErrInvalidTagSize
	}
	if nonceSize <= 0 {
		return nil, ErrInvalidNonceSize
	}
	return &AEAD{block: block, nonceSize: nonceSize, tagSize: tagSize}, nil
}

// NonceSize returns the nonce length this instance expects.
func (g *AEAD) NonceSize() int {
	return g.nonceSize
}

// Overhead returns the tag length.
func (g *AEAD) Overhead() int {
	return g.tagSize
}

// deriveY0 computes the initial counter block. A 12 byte nonce is used
// directly with a one-valued 32 bit counter appended; any other length is
// run through GHASH as ciphertext with an empty associated data region.
func (g *AEAD) deriveY0(h, nonce []byte, y0 *[BlockSize]byte) {
	if len(nonce) == NonceSize {
		copy(y0[:], nonce)
		y0[12], y0[13], y0[14] = 0, 0, 0
		y0[15] = 0x01
		return
	}
	acc := ghash.New(h)
	acc.WriteCipher(nonce)
	acc.Finalize(y0[:])
}

// Seal encrypts and authenticates plaintext, authenticates aad, and
// appends ciphertext followed by the truncated tag to dst.
func (g *AEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	if len(nonce) != g.nonceSize {
		panic("gcm: incorrect nonce length")
	}
	ret, out := sliceForAppend(dst, len(plaintext)+g.tagSize)
	g.seal(out, nonce, plaintext, aad)
	return ret
}

func (g *AEAD) seal(out, nonce, plaintext, aad []byte) {
	var h, y0, tagMask, fullTag [BlockSize]byte
	defer mem.Wipe(h[:])
	defer mem.Wipe(y0[:])
	defer mem.Wipe(tagMask[:])
	defer mem.Wipe(fullTag[:])

	// H = E_K(0^128).
	g.block.Encrypt(h[:], h[:])
	g.deriveY0(h[:], nonce, &y0)

	// The GCM counter occupies only the last 4 bytes of the block.
	stream := ctr.NewWindow(g.block, y0[:], 12, 4)
	defer stream.Wipe()

	// Keystream block 0 is the tag mask; blocks 1.. encrypt the payload.
	stream.XORKeyStream(tagMask[:], tagMask[:])

	ciphertext := out[:len(plaintext)]
	stream.XORKeyStream(ciphertext, plaintext)

	acc := ghash.New(h[:])
	acc.WriteAAD(aad)
	acc.WriteCipher(ciphertext)
	acc.Finalize(fullTag[:])

	tag := out[len(plaintext):]
	for i := 0; i < g.tagSize; i++ {
		tag[i] = fullTag[i] ^ tagMask[i]
	}
}

// Open authenticates ciphertext and aad and, only if the tag matches,
// appends the decrypted plaintext to dst. On mismatch it returns ErrOpen
// and no plaintext; the output buffer is cleared.
func (g *AEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != g.nonceSize {
		panic("gcm: incorrect nonce length")
	}
	if len(ciphertext) < g.tagSize {
		return nil, ErrOpen
	}
	tag := ciphertext[len(ciphertext)-g.tagSize:]
	ciphertext = ciphertext[:len(ciphertext)-g.tagSize]

	ret, out := sliceForAppend(dst, len(ciphertext))
	if err := g.open(out, nonce, ciphertext, tag, aad); err != nil {
		clear(out)
		return nil, err
	}
	return ret, nil
}

func (g *AEAD) open(out, nonce, ciphertext, tag, aad []byte) error {
	var h, y0, tagMask, fullTag [BlockSize]byte
	defer mem.Wipe(h[:])
	defer mem.Wipe(y0[:])
	defer mem.Wipe(tagMask[:])
	defer mem.Wipe(fullTag[:])

	g.block.Encrypt(h[:], h[:])
	g.deriveY0(h[:], nonce, &y0)

	stream := ctr.NewWindow(g.block, y0[:], 12, 4)
	defer stream.Wipe()

	// Consume keystream block 0 up front so the stream sits at block 1
	// whether or not decryption happens.
	stream.XORKeyStream(tagMask[:], tagMask[:])

	acc := ghash.New(h[:])
	acc.WriteAAD(aad)
	acc.WriteCipher(ciphertext)
	acc.Finalize(fullTag[:])

	for i := 0; i < g.tagSize; i++ {
		fullTag[i] ^= tagMask[i]
	}
	if subtle.ConstantTimeCompare(fullTag[:g.tagSize], tag) != 1 {
		return ErrOpen
	}

	// Verified; only now is any plaintext produced.
	stream.XORKeyStream(out, ciphertext)
	return nil
}

// sliceForAppend extends in by n bytes, reusing its capacity when
// possible, and returns the extended slice along with the n byte tail to
// write into.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
