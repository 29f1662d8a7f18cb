package hashutil

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFnv1aBufMatchesFnv1aU64(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 256; i++ {
		word := r.Uint64()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, word)

		byBuf := Fnv1aBuf(buf, Basis)
		byWord := Fnv1aU64(word, Basis)

		require.Equal(t, byBuf, byWord, "word=%x", word)
	}
}

func TestSdHashMatchesSdHashOid(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 256; i++ {
		word := r.Uint64()
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, word)

		assert.Equal(t, SdHash(buf), SdHashOid(word))
	}
}

func TestSdHashVdiNameFitsIn24Bits(t *testing.T) {
	names := []string{"", "a", "bucket", "account/bucket", "account/bucket/allocator"}
	for _, n := range names {
		h := SdHashVdiName(n)
		assert.Less(t, h, uint32(1<<24))
	}
}

func TestSdHashKnownValues(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0xf4ed18ebf16aa5cc},
		{"a", 0x35f3448388db68d5},
		{"apple", 0x843b7a5e54bc4388},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SdHash([]byte(c.in)), "SdHash(%q)", c.in)
	}
}

func TestSdHashIsStable(t *testing.T) {
	a := SdHash([]byte("apple"))
	b := SdHash([]byte("apple"))
	assert.Equal(t, a, b)

	c := SdHash([]byte("pear"))
	assert.NotEqual(t, a, c)
}
