package fingerprint

import (
	"path"
	"strings"
)

// Filter decides which paths take part in tracking. The storage directory is always
// excluded. Extensions, when non-empty, is an allow-list matched case-insensitively.
//
// Ignore patterns follow three forms:
//   - "name/*"  excludes any path with a component equal to name
//   - globs     ("*.tmp", "build/*.o") match the trailing path components, one per pattern segment
//   - plain     (".DS_Store") match a base name exactly
type Filter struct {
	storageDir string
	extensions map[string]bool
	patterns   []string
}

func NewFilter(storageDir string, extensions, patterns []string) *Filter {
	f := &Filter{
		storageDir: storageDir,
		patterns:   patterns,
	}
	if len(extensions) > 0 {
		f.extensions = make(map[string]bool, len(extensions))
		for _, ext := range extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			f.extensions[ext] = true
		}
	}
	return f
}

// SkipDir reports whether the directory at rel should not be descended into.
func (f *Filter) SkipDir(rel string) bool {
	if rel == f.storageDir || strings.HasPrefix(rel, f.storageDir+"/") {
		return true
	}
	for _, pat := range f.patterns {
		if dir, ok := strings.CutSuffix(pat, "/*"); ok && hasComponent(rel, dir) {
			return true
		}
	}
	return false
}

// Excluded reports whether the regular file at rel is left out of the index.
func (f *Filter) Excluded(rel string) bool {
	if dir := path.Dir(rel); dir != "." && f.SkipDir(dir) {
		return true
	}
	if f.extensions != nil && !f.extensions[strings.ToLower(path.Ext(rel))] {
		return true
	}

	base := path.Base(rel)
	for _, pat := range f.patterns {
		switch {
		case strings.HasSuffix(pat, "/*"):
			// directory patterns are handled by SkipDir
		case strings.ContainsAny(pat, "*?["):
			if ok, _ := path.Match(pat, tail(rel, strings.Count(pat, "/")+1)); ok {
				return true
			}
		default:
			if base == pat {
				return true
			}
		}
	}
	return false
}

// tail returns the last n components of rel, so multi-component globs match
// at any depth.
func tail(rel string, n int) string {
	parts := strings.Split(rel, "/")
	if n >= len(parts) {
		return rel
	}
	return strings.Join(parts[len(parts)-n:], "/")
}

func hasComponent(rel, name string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == name {
			return true
		}
	}
	return false
}
