// Package writeback persists an object's changed tags back to its
// directory, per spec.md §4.8.
package writeback

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karlgluck/tagengine/engine"
	"github.com/karlgluck/tagengine/tagstore"
)

const tagFileMode = 0o660

// Write persists changed tags under objectPath: each name is split on
// "." into nested directories plus a "#<leaf>" file. A whitespace-only
// value deletes the file instead of writing it. The evaluator's error
// list, if any, is additionally serialized into "#errors".
func Write(objectPath string, changed map[string]string, errs []engine.EvalError) error {
	for name, value := range changed {
		if err := writeOne(objectPath, name, value); err != nil {
			return fmt.Errorf("writing back %s: %w", name, err)
		}
	}
	if len(errs) > 0 {
		if err := writeOne(objectPath, "errors", errorsText(errs)); err != nil {
			return fmt.Errorf("writing back #errors: %w", err)
		}
	}
	return nil
}

func errorsText(errs []engine.EvalError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.String())
	}
	return strings.Join(lines, "\n")
}

// writeOne writes (or deletes) a single tag's file.
func writeOne(objectPath, name, value string) error {
	dirs, leaf := tagstore.Leaf(name)
	dir := filepath.Join(append([]string{objectPath}, dirs...)...)
	path := filepath.Join(dir, "#"+leaf)

	if isAllWhitespace(value) {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return err
	}
	return atomicWrite(path, value)
}

// atomicWrite writes data to path by writing to a sibling temp file
// and renaming it into place, so a reader never observes a partially
// written tag value.
func atomicWrite(path, data string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path))
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, tagFileMode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func isAllWhitespace(s string) bool {
	return strings.TrimSpace(s) == ""
}
