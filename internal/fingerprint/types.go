package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"

	"github.com/zeebo/blake3"
)

const (
	AlgorithmSHA256 = "sha256"
	AlgorithmBLAKE3 = "blake3"
)

// FileRecord is the fingerprint of one tracked file.
type FileRecord struct {
	Path string `json:"path"` // slash-separated, relative to the tree root
	Hash string `json:"hash"` // hex digest of the raw content
	Size int64  `json:"size"`
}

// Index maps a relative path to its record and describes the full tracked state
// at one version.
type Index map[string]FileRecord

// Paths returns the indexed paths in sorted order.
func (idx Index) Paths() []string {
	paths := make([]string, 0, len(idx))
	for p := range idx {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (idx Index) TotalSize() int64 {
	var n int64
	for _, r := range idx {
		n += r.Size
	}
	return n
}

func (idx Index) Equal(other Index) bool {
	if len(idx) != len(other) {
		return false
	}
	for p, r := range idx {
		if o, ok := other[p]; !ok || o != r {
			return false
		}
	}
	return true
}

func ValidAlgorithm(algorithm string) bool {
	return algorithm == AlgorithmSHA256 || algorithm == AlgorithmBLAKE3
}

func NewHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Sum returns the hex digest of data under algorithm.
func Sum(algorithm string, data []byte) (string, error) {
	h, err := NewHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
