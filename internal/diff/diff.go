// internal/diff/diff.go
package diff

import (
	"fmt"
	"sort"

	"gitnot/internal/fingerprint"
)

// ChangeSet classifies paths between two fingerprint indices. The three lists are
// sorted and pairwise disjoint.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Compute compares the previous index with the current one. Only content hashes
// are compared; a file whose bytes are unchanged is never reported.
func Compute(prev, cur fingerprint.Index) ChangeSet {
	cs := ChangeSet{
		Added:    []string{},
		Modified: []string{},
		Removed:  []string{},
	}

	for path, rec := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, path)
		case old.Hash != rec.Hash:
			cs.Modified = append(cs.Modified, path)
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			cs.Removed = append(cs.Removed, path)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Removed)
	return cs
}

// Empty reports the no-op result.
func (cs ChangeSet) Empty() bool {
	return cs.Len() == 0
}

func (cs ChangeSet) Len() int {
	return len(cs.Added) + len(cs.Modified) + len(cs.Removed)
}

// Superseded returns the paths whose previous content is replaced or removed.
func (cs ChangeSet) Superseded() []string {
	paths := make([]string, 0, len(cs.Modified)+len(cs.Removed))
	paths = append(paths, cs.Modified...)
	paths = append(paths, cs.Removed...)
	sort.Strings(paths)
	return paths
}

func (cs ChangeSet) Summary() string {
	return fmt.Sprintf("%d added, %d modified, %d removed", len(cs.Added), len(cs.Modified), len(cs.Removed))
}
