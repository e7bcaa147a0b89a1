package walker

import (
	"io/fs"
	"path/filepath"

	"semdex/internal/config"
)

// FileInfo holds metadata about a discovered source file.
type FileInfo struct {
	Path    string // absolute
	RelPath string // slash-separated, relative to the walked root
	Size    int64
}

// Walk traverses the tree rooted at root and sends eligible files on the
// returned channel, applying the indexing policy: extension allow-list,
// hidden-file skip, exclude patterns, and the size cap. Unreadable entries
// are skipped, never fatal.
func Walk(root string, policy config.Indexing) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip errors, keep walking
			}

			if d.IsDir() {
				if path == absRoot {
					return nil
				}
				rel, _ := filepath.Rel(absRoot, path)
				rel = filepath.ToSlash(rel)
				if config.Hidden(rel) || policy.Excluded(rel) {
					return filepath.SkipDir
				}
				return nil
			}

			// Skip symlinks.
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}

			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)
			if !policy.Eligible(rel, info.Size()) {
				return nil
			}

			files <- FileInfo{Path: path, RelPath: rel, Size: info.Size()}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}
