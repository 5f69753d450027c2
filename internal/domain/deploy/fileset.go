package deploy

import (
	"path"
	"sort"
	"strings"
)

// FileSet is an ordered collection of Files keyed by RelativePath.
type FileSet struct {
	files []*File
	index map[string]int
}

// NewFileSet builds a FileSet from files, in order.
func NewFileSet(files ...*File) *FileSet {
	set := &FileSet{
		index: make(map[string]int, len(files)),
	}

	for _, f := range files {
		set.Add(f)
	}

	return set
}

// Add appends f, or replaces the member with the same RelativePath in place.
func (s *FileSet) Add(f *File) {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	if i, ok := s.index[f.RelativePath]; ok {
		s.files[i] = f
		return
	}

	s.index[f.RelativePath] = len(s.files)
	s.files = append(s.files, f)
}

// Files returns the members in insertion order.
func (s *FileSet) Files() []*File {
	return append([]*File(nil), s.files...)
}

// Len returns the number of members.
func (s *FileSet) Len() int {
	return len(s.files)
}

// Lookup returns the member stored at relativePath.
func (s *FileSet) Lookup(relativePath string) (*File, bool) {
	i, ok := s.index[relativePath]
	if !ok {
		return nil, false
	}

	return s.files[i], true
}

// Paths returns member paths in insertion order.
func (s *FileSet) Paths() []string {
	paths := make([]string, 0, len(s.files))
	for _, f := range s.files {
		paths = append(paths, f.RelativePath)
	}

	return paths
}

// Under returns the members stored below dir, in order.
func (s *FileSet) Under(dir string) []*File {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	var result []*File

	for _, f := range s.files {
		if strings.HasPrefix(f.RelativePath, prefix) {
			result = append(result, f)
		}
	}

	return result
}

// Directories returns every ancestor directory of every member, sorted.
func (s *FileSet) Directories() []string {
	seen := make(map[string]struct{})

	for _, f := range s.files {
		for dir := path.Dir(f.RelativePath); dir != "." && dir != "/"; dir = path.Dir(dir) {
			seen[dir] = struct{}{}
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}

	sort.Strings(dirs)

	return dirs
}
