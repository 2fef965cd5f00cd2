// aes.go - AES PRP construction with hardware/bitsliced dispatch.

package gcm

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/minio/blake2b-simd"
	"gitlab.com/yawning/bsaes.git"
	"golang.org/x/sys/cpu"

	"github.com/Hobbybyte/aead/internal/mem"
)

var hasHardwareAES = cpu.X86.HasAES || cpu.ARM64.HasAES

var extractConfig = &blake2b.Config{Size: 32}

// NewAES builds the AES PRP for key. On CPUs with AES acceleration the
// standard library implementation is used; everywhere else the bitsliced
// constant-time implementation takes over. The capability query is resolved
// once, at package init.
func NewAES(key []byte) (cipher.Block, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, aes.KeySizeError(len(key))
	}
	if hasHardwareAES {
		return aes.NewCipher(key)
	}
	return bsaes.NewCipher(key)
}

// ExtractKey condenses arbitrary-length key material into an AES-256 key.
// Material that is already 32 bytes is used as-is.
func ExtractKey(material []byte) [32]byte {
	var key [32]byte
	if len(material) == 32 {
		copy(key[:], material)
		return key
	}
	h, err := blake2b.New(extractConfig)
	if err != nil {
		panic("gcm: ExtractKey: " + err.Error())
	}
	h.Write(material)
	tmp := h.Sum(nil)
	copy(key[:], tmp)
	mem.Wipe(tmp)
	return key
}

// NewAESFromMaterial composes ExtractKey and NewAES for callers whose key
// material is not already a valid AES key.
func NewAESFromMaterial(material []byte) (cipher.Block, error) {
	key := ExtractKey(material)
	defer mem.Wipe(key[:])
	return NewAES(key[:])
}
