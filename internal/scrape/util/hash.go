package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
)

func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Hash32 is a cheap non-cryptographic hash for shard selection and seeds.
func Hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
