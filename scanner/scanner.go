// Package scanner recursively enumerates "#tag" files under an object
// root, per spec.md §4.3.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Item is one tag file discovered under an object root: the dotted tag
// name it represents and the absolute path to the file that holds its
// value.
type Item struct {
	ObjectPath string
	TagName    string
	Path       string
}

// ObjectNotFoundError reports that a scan root is not a directory, the
// spec.md §4.4/§7 failure mode that aborts one object without
// affecting the rest of a batch.
type ObjectNotFoundError struct {
	ObjectPath string
	Err        error
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("object not found: %s: %v", e.ObjectPath, e.Err)
}

func (e *ObjectNotFoundError) Unwrap() error { return e.Err }

// Scan walks objectPath and returns one Item per "#<leaf>" file found
// under it, skipping symbolic links entirely (both link-to-file and
// link-to-directory) as spec.md §4.3 requires. The dotted tag name is
// built from the directory segments walked between objectPath and the
// file, joined by ".", followed by the file's basename with its
// leading "#" stripped.
func Scan(objectPath string) ([]Item, error) {
	info, err := filepath.EvalSymlinks(objectPath)
	if err == nil {
		objectPath = info
	}
	root, err := filepath.Abs(objectPath)
	if err != nil {
		return nil, &ObjectNotFoundError{ObjectPath: objectPath, Err: err}
	}
	info2, err := os.Stat(root)
	if err != nil {
		return nil, &ObjectNotFoundError{ObjectPath: objectPath, Err: err}
	}
	if !info2.IsDir() {
		return nil, &ObjectNotFoundError{ObjectPath: objectPath, Err: fmt.Errorf("%s is not a directory", root)}
	}

	var items []Item
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if !strings.HasPrefix(base, "#") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		items = append(items, Item{
			ObjectPath: objectPath,
			TagName:    tagNameFromRelPath(rel),
			Path:       path,
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning %s: %w", objectPath, walkErr)
	}
	return items, nil
}

// tagNameFromRelPath turns "foo/bar/#qux" into "foo.bar.qux", per
// spec.md §4.3's worked examples.
func tagNameFromRelPath(rel string) string {
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	leaf := strings.TrimPrefix(segments[len(segments)-1], "#")
	segments[len(segments)-1] = leaf
	return strings.Join(segments, ".")
}
