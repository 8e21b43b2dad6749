package disk

import (
	_ "crypto/sha256" // registers SHA-256 for go-digest
	_ "crypto/sha512" // registers SHA-384 and SHA-512 for go-digest
	"strings"

	digest "github.com/opencontainers/go-digest"
)

const (
	// Suffix is the file name suffix of uncompressed cache entries.
	Suffix = ".cache"

	// CompressedSuffix is the file name suffix of zstd-compressed cache entries.
	CompressedSuffix = ".cache.zst"
)

// Address returns the content address of key: the lowercase hex digest of
// the key's bytes under alg. Keys cannot be recovered from addresses.
func Address(alg digest.Algorithm, key string) string {
	return alg.FromString(key).Encoded()
}

// naming maps keys to entry file names and recognises entry files.
type naming struct {
	alg    digest.Algorithm
	suffix string
}

func (n naming) fileName(key string) string {
	return Address(n.alg, key) + n.suffix
}

// isEntry reports whether name is an entry file of this cache: a valid hex
// digest of the configured algorithm followed by the active suffix.
func (n naming) isEntry(name string) bool {
	encoded, ok := strings.CutSuffix(name, n.suffix)
	if !ok {
		return false
	}
	return n.alg.Validate(encoded) == nil
}
