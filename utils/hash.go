package utils

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru"
)

const (
	hashMemoSize int = 4096
)

var (
	hashMemo *lru.Cache
)

func init() {
	memo, err := lru.New(hashMemoSize)
	if err != nil {
		panic(err)
	}
	hashMemo = memo
}

// HashData returns a fast non-cryptographic hash of the given string in hex.
// Results are memoized per input.
func HashData(data string) string {
	if cached, ok := hashMemo.Get(data); ok {
		if hash, ok := cached.(string); ok {
			return hash
		}
	}

	hash := MakeHash(data)
	hashMemo.Add(data, hash)
	return hash
}

// MakeHash returns xxhash64 of the given string in hex, without memoization
func MakeHash(data string) string {
	return strconv.FormatUint(xxhash.Sum64String(data), 16)
}

// HashParts hashes multiple strings as one, each part is length-prefixed so that
// ("ab", "c") and ("a", "bc") differ
func HashParts(parts ...string) uint64 {
	digest := xxhash.New()
	for _, part := range parts {
		digest.WriteString(strconv.Itoa(len(part)))
		digest.WriteString(":")
		digest.WriteString(part)
	}
	return digest.Sum64()
}
