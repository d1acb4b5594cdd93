// slug.go computes the deterministic per-version package slug used as the
// depot directory name and the cache-file key. The slug depends only on
// (uuid, git-tree-sha1), so identical content yields identical slugs on
// every machine.
package project

import (
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/google/uuid"
)

// slugLength is the number of base-62 characters in a slug.
const slugLength = 5

var slugAlphabet = []byte("0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ComputeSlug derives the slug from a package UUID and its content hash
// from the manifest: CRC-32C over the raw UUID bytes followed by the raw
// SHA-1 bytes, encoded as 5 base-62 characters.
func ComputeSlug(uuidStr, treeSHA1 string) (string, error) {
	id, err := uuid.Parse(uuidStr)
	if err != nil {
		return "", fmt.Errorf("parsing package uuid: %w", err)
	}

	sha, err := hex.DecodeString(strings.TrimSpace(treeSHA1))
	if err != nil {
		return "", fmt.Errorf("parsing git-tree-sha1: %w", err)
	}

	crc := crc32.Update(0, castagnoli, id[:])
	crc = crc32.Update(crc, castagnoli, sha)

	return encodeBase62(crc, slugLength), nil
}

// encodeBase62 writes x as p base-62 digits, least significant first,
// matching the depot layout convention.
func encodeBase62(x uint32, p int) string {
	out := make([]byte, p)
	for i := 0; i < p; i++ {
		out[i] = slugAlphabet[x%62]
		x /= 62
	}
	return string(out)
}
