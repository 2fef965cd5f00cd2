package gcm

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/minio/blake2b-simd"
)

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// The AES-128 vectors from the original GCM submission. Test cases 1
// through 4 use the standard 12 byte nonce, case 5 an 8 byte one and case 6
// a 60 byte one, so both counter derivation paths are covered.
var nistVectors = []struct {
	name                  string
	key, nonce, plaintext string
	aad, ciphertext, tag  string
}{
	{
		name:  "tc1",
		key:   "00000000000000000000000000000000",
		nonce: "000000000000000000000000",
		tag:   "58e2fccefa7e3061367f1d57a4e7455a",
	},
	{
		name:       "tc2",
		key:        "00000000000000000000000000000000",
		nonce:      "000000000000000000000000",
		plaintext:  "00000000000000000000000000000000",
		ciphertext: "0388dace60b6a392f328c2b971b2fe78",
		tag:        "ab6e47d42cec13bdf53a67b21257bddf",
	},
	{
		name:  "tc3",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b391aafd255",
		ciphertext: "42831ec2217774244b7221b784d0d49c" +
			"e3aa212f2c02a4e035c17e2329aca12e" +
			"21d514b25466931c7d8f6a5aac84aa05" +
			"1ba30b396a0aac973d58e091473f5985",
		tag: "4d5c2af327cd64a62cf35abd2ba6fab4",
	},
	{
		name:  "tc4",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbaddecaf888",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeef" +
			"abaddad2",
		ciphertext: "42831ec2217774244b7221b784d0d49c" +
			"e3aa212f2c02a4e035c17e2329aca12e" +
			"21d514b25466931c7d8f6a5aac84aa05" +
			"1ba30b396a0aac973d58e091",
		tag: "5bc94fbc3221a5db94fae95ae7121a47",
	},
	{
		name:  "tc5",
		key:   "feffe9928665731c6d6a8f9467308308",
		nonce: "cafebabefacedbad",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeef" +
			"abaddad2",
		ciphertext: "61353b4c2806934a777ff51fa22a4755" +
			"699b2a714fcdc6f83766e5f97b6c7423" +
			"73806900e49f24b22b097544d4896b42" +
			"4989b5e1ebac0f07c23f4598",
		tag: "3612d2e79e3b0785561be14aaca2fccb",
	},
	{
		name: "tc6",
		key:  "feffe9928665731c6d6a8f9467308308",
		nonce: "9313225df88406e555909c5aff5269aa" +
			"6a7a9538534f7da1e4c303d2a318a728" +
			"c3c0c95156809539fcf0e2429a6b5254" +
			"16aedbf5a0de6a57a637b39b",
		plaintext: "d9313225f88406e5a55909c5aff5269a" +
			"86a7a9531534f7da2e4c303d8a318a72" +
			"1c3c0c95956809532fcf0e2449a6b525" +
			"b16aedf5aa0de657ba637b39",
		aad: "feedfacedeadbeeffeedfacedeadbeef" +
			"abaddad2",
		ciphertext: "8ce24998625615b603a033aca13fb894" +
			"be9112a5c3a211a8ba262a3cca7e2ca7" +
			"01e4a9a4fba43c90ccdcb281d48c7c6f" +
			"d62875d2aca417034c34aee5",
		tag: "619cc5aefffe0bfa462af43c1699d050",
	},
}

func TestNISTVectors(t *testing.T) {
	for _, tc := range nistVectors {
		t.Run(tc.name, func(t *testing.T) {
			block, err := NewAES(mustDecodeHex(tc.key))
			if err != nil {
				t.Fatal(err)
			}
			nonce := mustDecodeHex(tc.nonce)
			g, err := NewWithNonceSize(block, len(nonce))
			if err != nil {
				t.Fatal(err)
			}

			plaintext := mustDecodeHex(tc.plaintext)
			aad := mustDecodeHex(tc.aad)
			want := append(mustDecodeHex(tc.ciphertext), mustDecodeHex(tc.tag)...)

			sealed := g.Seal(nil, nonce, plaintext, aad)
			if !bytes.Equal(sealed, want) {
				t.Fatalf("Seal mismatch\ngot:  %x\nwant: %x", sealed, want)
			}

			opened, err := g.Open(nil, nonce, sealed, aad)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("Open mismatch\ngot:  %x\nwant: %x", opened, plaintext)
			}
		})
	}
}

// prg derives deterministic test bytes so failures are reproducible.
func prg(domain string, n int) []byte {
	out := make([]byte, 0, n)
	var ctr [8]byte
	for i := 0; len(out) < n; i++ {
		binary.BigEndian.PutUint64(ctr[:], uint64(i))
		h := blake2b.New512()
		h.Write([]byte(domain))
		h.Write(ctr[:])
		out = append(out, h.Sum(nil)...)
	}
	return out[:n]
}

func TestMatchesStdlibGCM(t *testing.T) {
	key := prg("gcm-stdlib-key", 16)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}

	nonce := prg("gcm-stdlib-nonce", NonceSize)
	aad := prg("gcm-stdlib-aad", 23)
	for _, n := range []int{0, 1, 15, 16, 17, 63, 64, 65, 255} {
		plaintext := prg("gcm-stdlib-pt", n)
		want := ref.Seal(nil, nonce, plaintext, aad)
		got := g.Seal(nil, nonce, plaintext, aad)
		if !bytes.Equal(got, want) {
			t.Fatalf("len %d: diverges from crypto/cipher GCM", n)
		}
		opened, err := g.Open(nil, nonce, want, aad)
		if err != nil {
			t.Fatalf("len %d: Open: %v", n, err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestNonceSizes(t *testing.T) {
	block, err := NewAES(prg("gcm-nonce-key", 32))
	if err != nil {
		t.Fatal(err)
	}
	plaintext := prg("gcm-nonce-pt", 100)
	aad := prg("gcm-nonce-aad", 13)

	for _, size := range []int{1, 8, 12, 16, 60} {
		g, err := NewWithNonceSize(block, size)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if g.NonceSize() != size {
			t.Fatalf("size %d: NonceSize() = %d", size, g.NonceSize())
		}
		nonce := prg("gcm-nonce", size)
		sealed := g.Seal(nil, nonce, plaintext, aad)
		opened, err := g.Open(nil, nonce, sealed, aad)
		if err != nil {
			t.Fatalf("size %d: Open: %v", size, err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Fatalf("size %d: round trip mismatch", size)
		}
	}
}

func TestTagSizes(t *testing.T) {
	block, err := NewAES(prg("gcm-tag-key", 16))
	if err != nil {
		t.Fatal(err)
	}
	full, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := prg("gcm-tag-nonce", NonceSize)
	plaintext := prg("gcm-tag-pt", 40)
	ref := full.Seal(nil, nonce, plaintext, nil)

	for size := MinTagSize; size <= TagSize; size++ {
		g, err := NewWithTagSize(block, size)
		if err != nil {
			t.Fatalf("size %d: %v", size, err)
		}
		if g.Overhead() != size {
			t.Fatalf("size %d: Overhead() = %d", size, g.Overhead())
		}
		sealed := g.Seal(nil, nonce, plaintext, nil)
		if len(sealed) != len(plaintext)+size {
			t.Fatalf("size %d: sealed length %d", size, len(sealed))
		}
		// A truncated tag is a prefix of the full one.
		if !bytes.Equal(sealed, ref[:len(plaintext)+size]) {
			t.Fatalf("size %d: tag is not a prefix of the full tag", size)
		}
		if _, err := g.Open(nil, nonce, sealed, nil); err != nil {
			t.Fatalf("size %d: Open: %v", size, err)
		}
	}
}

type oddBlock struct{}

func (oddBlock) BlockSize() int          { return 8 }
func (oddBlock) Encrypt(dst, src []byte) {}
func (oddBlock) Decrypt(dst, src []byte) {}

func TestConstructorValidation(t *testing.T) {
	block, err := NewAES(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}

	for _, size := range []int{-1, 0, 1, 17} {
		if _, err := NewWithTagSize(block, size); err != ErrInvalidTagSize {
			t.Fatalf("tag size %d: err = %v, want ErrInvalidTagSize", size, err)
		}
	}
	for _, size := range []int{-1, 0} {
		if _, err := NewWithNonceSize(block, size); err != ErrInvalidNonceSize {
			t.Fatalf("nonce size %d: err = %v, want ErrInvalidNonceSize", size, err)
		}
	}
	if _, err := New(oddBlock{}); err != ErrInvalidBlockSize {
		t.Fatalf("8 byte block: err = %v, want ErrInvalidBlockSize", err)
	}
	if _, err := NewAES(make([]byte, 15)); err == nil {
		t.Fatal("NewAES accepted a 15 byte key")
	}
}

func TestTamperRejection(t *testing.T) {
	block, err := NewAES(prg("gcm-tamper-key", 16))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := prg("gcm-tamper-nonce", NonceSize)
	aad := prg("gcm-tamper-aad", 7)
	plaintext := prg("gcm-tamper-pt", 33)
	sealed := g.Seal(nil, nonce, plaintext, aad)

	for bit := 0; bit < len(sealed)*8; bit++ {
		bad := append([]byte(nil), sealed...)
		bad[bit/8] ^= 1 << (bit % 8)
		if _, err := g.Open(nil, nonce, bad, aad); err != ErrOpen {
			t.Fatalf("flipped sealed bit %d: err = %v, want ErrOpen", bit, err)
		}
	}
	for bit := 0; bit < len(aad)*8; bit++ {
		bad := append([]byte(nil), aad...)
		bad[bit/8] ^= 1 << (bit % 8)
		if _, err := g.Open(nil, nonce, sealed, bad); err != ErrOpen {
			t.Fatalf("flipped aad bit %d: err = %v, want ErrOpen", bit, err)
		}
	}
	badNonce := append([]byte(nil), nonce...)
	badNonce[0] ^= 0x01
	if _, err := g.Open(nil, badNonce, sealed, aad); err != ErrOpen {
		t.Fatalf("flipped nonce bit: err = %v, want ErrOpen", err)
	}
}

func TestDeterminism(t *testing.T) {
	block, err := NewAES(prg("gcm-det-key", 16))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := prg("gcm-det-nonce", NonceSize)
	aad := prg("gcm-det-aad", 9)
	plaintext := prg("gcm-det-pt", 50)

	first := g.Seal(nil, nonce, plaintext, aad)
	second := g.Seal(nil, nonce, plaintext, aad)
	if !bytes.Equal(first, second) {
		t.Fatal("identical inputs produced different output")
	}
}

func TestOpenShortCiphertext(t *testing.T) {
	block, err := NewAES(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := make([]byte, NonceSize)
	for n := 0; n < TagSize; n++ {
		if _, err := g.Open(nil, nonce, make([]byte, n), nil); err != ErrOpen {
			t.Fatalf("len %d: err = %v, want ErrOpen", n, err)
		}
	}
}

func TestWrongNoncePanics(t *testing.T) {
	block, err := NewAES(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for wrong nonce length")
		}
	}()
	g.Seal(nil, make([]byte, 11), nil, nil)
}

func TestSealAppends(t *testing.T) {
	block, err := NewAES(prg("gcm-append-key", 16))
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := prg("gcm-append-nonce", NonceSize)
	plaintext := prg("gcm-append-pt", 21)

	prefix := []byte("header:")
	sealed := g.Seal(append([]byte(nil), prefix...), nonce, plaintext, nil)
	if !bytes.HasPrefix(sealed, prefix) {
		t.Fatal("Seal clobbered the dst prefix")
	}
	opened, err := g.Open(append([]byte(nil), prefix...), nonce, sealed[len(prefix):], nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(opened, prefix) || !bytes.Equal(opened[len(prefix):], plaintext) {
		t.Fatal("Open append mismatch")
	}
}

func TestExtractKey(t *testing.T) {
	material := prg("gcm-extract", 32)
	key := ExtractKey(material)
	if !bytes.Equal(key[:], material) {
		t.Fatal("32 byte material must pass through unchanged")
	}

	short := []byte("not a real key")
	k1 := ExtractKey(short)
	k2 := ExtractKey(short)
	if k1 != k2 {
		t.Fatal("extraction is not deterministic")
	}
	if bytes.Equal(k1[:len(short)], short) {
		t.Fatal("short material was not hashed")
	}

	block, err := NewAESFromMaterial(short)
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(block)
	if err != nil {
		t.Fatal(err)
	}
	nonce := prg("gcm-extract-nonce", NonceSize)
	sealed := g.Seal(nil, nonce, []byte("payload"), nil)
	opened, err := g.Open(nil, nonce, sealed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(opened) != "payload" {
		t.Fatal("round trip through extracted key failed")
	}
}

func BenchmarkSeal1K(b *testing.B) {
	block, _ := NewAES(make([]byte, 16))
	g, _ := New(block)
	nonce := make([]byte, NonceSize)
	plaintext := make([]byte, 1024)
	dst := make([]byte, 0, len(plaintext)+TagSize)
	b.SetBytes(int64(len(plaintext)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Seal(dst[:0], nonce, plaintext, nil)
	}
}

func BenchmarkOpen1K(b *testing.B) {
	block, _ := NewAES(make([]byte, 16))
	g, _ := New(block)
	nonce := make([]byte, NonceSize)
	sealed := g.Seal(nil, nonce, make([]byte, 1024), nil)
	dst := make([]byte, 0, 1024)
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Open(dst[:0], nonce, sealed, nil); err != nil {
			b.Fatal(err)
		}
	}
}
