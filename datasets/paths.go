package datasets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions are the file suffixes picked up when a directory is listed.
var Extensions = []string{".h5", ".hdf", ".hdf5", ".hd5"}

// TraversePaths expands every directory in paths to the data files it
// directly contains, sorted by name. Files are kept as given and the order of
// paths is preserved.
func TraversePaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p, err)
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && IsDataFile(e.Name()) {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}

// IsDataFile reports whether name carries one of Extensions.
func IsDataFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
