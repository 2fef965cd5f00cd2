// chacha20poly1305.go - ChaCha20-Poly1305 AEAD.

// Package chacha20poly1305 implements the RFC 8439 AEAD built from the
// ChaCha20 stream cipher and the Poly1305 one-time authenticator. The
// authenticator is keyed from keystream block 0, the payload is encrypted
// starting at block 1, and on decryption the tag is verified before a
// single byte of plaintext is produced.
package chacha20poly1305

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20"

	"github.com/Hobbybyte/aead/internal/mem"
	"github.com/Hobbybyte/aead/poly1305"
)

const (
	// KeySize is the ChaCha20 key length in bytes.
	KeySize = chacha20.KeySize

	// NonceSize is the nonce length in bytes.
	NonceSize = chacha20.NonceSize

	// TagSize is the authentication tag length in bytes. Unlike GCM, the
	// tag is never truncated.
	TagSize = poly1305.TagSize
)

var (
	// ErrOpen is returned when decryption fails authentication.
	ErrOpen = errors.New("chacha20poly1305: message authentication failed")

	// ErrInvalidKeySize is returned when the key is not 32 bytes.
	ErrInvalidKeySize = errors.New("chacha20poly1305: invalid key size")
)

// AEAD is a ChaCha20-Poly1305 instance bound to a key. It implements
// cipher.AEAD. Instances carry no mutable state across calls.
type AEAD struct {
	key [KeySize]byte
}

var _ cipher.AEAD = (*AEAD)(nil)

// New returns a ChaCha20-Poly1305 instance for the given 32 byte key.
func New(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	a := &AEAD{}
	copy(a.key[:], key)
	return a, nil
}

// NonceSize returns the required nonce length.
func (a *AEAD) NonceSize() int {
	return NonceSize
}

// Overhead returns the tag length.
func (a *AEAD) Overhead() int {
	return TagSize
}

// initMAC keys the one-time authenticator from the first 32 bytes of
// keystream block 0. The remaining 32 bytes of the block are generated and
// thrown away, leaving the stream positioned at block 1 for the payload.
func (a *AEAD) initMAC(nonce []byte) (*chacha20.Cipher, *poly1305.MAC) {
	stream, err := chacha20.NewUnauthenticatedCipher(a.key[:], nonce)
	if err != nil {
		panic("chacha20poly1305: " + err.Error())
	}

	var block0 [64]byte
	stream.XORKeyStream(block0[:], block0[:])

	var polyKey [poly1305.KeySize]byte
	copy(polyKey[:], block0[:poly1305.KeySize])
	m := poly1305.New(&polyKey)
	mem.Wipe(polyKey[:])
	mem.Wipe(block0[:])

	return stream, m
}

var zeroPad [16]byte

// padLen returns how many zero bytes extend n to the next 16 byte
// boundary.
func padLen(n int) int {
	return (16 - (n & 0xf)) & 0xf
}

// writeLengths folds the 8 byte little-endian byte counts of the
// associated data and ciphertext regions into the MAC. Byte counts, little
// endian; GHASH uses bit counts, big endian.
func writeLengths(m *poly1305.MAC, aadLen, cipherLen int) {
	var lengths [16]byte
	binary.LittleEndian.PutUint64(lengths[0:8], uint64(aadLen))
	binary.LittleEndian.PutUint64(lengths[8:16], uint64(cipherLen))
	m.Write(lengths[:])
}

// Seal encrypts and authenticates plaintext, authenticates aad, and
// appends ciphertext followed by the 16 byte tag to dst.
func (a *AEAD) Seal(dst, nonce, plaintext, aad []byte) []byte {
	if len(nonce) != NonceSize {
		panic("chacha20poly1305: incorrect nonce length")
	}
	ret, out := sliceForAppend(dst, len(plaintext)+TagSize)

	stream, m := a.initMAC(nonce)

	m.Write(aad)
	m.Write(zeroPad[:padLen(len(aad))])

	ciphertext := out[:len(plaintext)]
	stream.XORKeyStream(ciphertext, plaintext)
	m.Write(ciphertext)
	m.Write(zeroPad[:padLen(len(ciphertext))])

	writeLengths(m, len(aad), len(ciphertext))

	tag := m.Sum(nil)
	copy(out[len(plaintext):], tag)
	mem.Wipe(tag)
	return ret
}

// Open authenticates ciphertext and aad and, only if the tag matches,
// appends the decrypted plaintext to dst. On mismatch it returns ErrOpen,
// clears the output buffer, and produces no plaintext.
func (a *AEAD) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		panic("chacha20poly1305: incorrect nonce length")
	}
	if len(ciphertext) < TagSize {
		return nil, ErrOpen
	}
	tag := ciphertext[len(ciphertext)-TagSize:]
	ciphertext = ciphertext[:len(ciphertext)-TagSize]

	ret, out := sliceForAppend(dst, len(ciphertext))

	stream, m := a.initMAC(nonce)

	m.Write(aad)
	m.Write(zeroPad[:padLen(len(aad))])

	// The ciphertext is authenticated as received; decryption waits on
	// the verdict.
	m.Write(ciphertext)
	m.Write(zeroPad[:padLen(len(ciphertext))])

	writeLengths(m, len(aad), len(ciphertext))

	if !m.Verify(tag) {
		clear(out)
		return nil, ErrOpen
	}

	stream.XORKeyStream(out, ciphertext)
	return ret, nil
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
