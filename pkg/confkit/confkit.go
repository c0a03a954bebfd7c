package confkit

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResolvePath expands environment variables in file and, when the result is
// relative, joins it to base.
func ResolvePath(base, file string) string {
	file = os.ExpandEnv(file)
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(base, file)
}

// BaseDir returns the directory of the main config file path.
func BaseDir(mainPath string) string {
	return filepath.Dir(mainPath)
}

// Section is a config block that may live in its own file. File is resolved
// relative to the main config and loaded into Value by Hydrate.
type Section[T any] struct {
	File  string `json:",optional"`
	Value *T     `json:"-"`
}

// Hydrate loads File through loader. An empty File leaves the section unset.
func (s *Section[T]) Hydrate(base string, loader func(string) (*T, error)) error {
	if s.File == "" {
		return nil
	}
	p := ResolvePath(base, s.File)
	v, err := loader(p)
	if err != nil {
		return fmt.Errorf("hydrate %s: %w", p, err)
	}
	s.File, s.Value = p, v
	return nil
}

// Configured reports whether the section points at a file or carries a value.
func (s Section[T]) Configured() bool {
	return s.File != "" || s.Value != nil
}

// FindUp walks from dir towards the filesystem root and returns the first
// directory containing any of the marker names.
func FindUp(dir string, markers ...string) (string, bool) {
	for i := 0; i < 8; i++ {
		for _, m := range markers {
			if fileExists(filepath.Join(dir, m)) {
				return dir, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
