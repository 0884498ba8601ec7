// Package workspace prepares the directory that syncsplit rewrites, so the
// original project is never modified.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
)

// DefaultDir returns the working-copy path used when none is given: the
// project root with a trailing underscore.
func DefaultDir(root string) string {
	return filepath.Clean(root) + "_"
}

// Copy recreates src at dst, replacing any existing dst. Permissions are kept
// and symlinks are recreated as links. dst must be neither src, inside src,
// nor an ancestor of src.
func Copy(src, dst string) error {
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	if err := checkDisjoint(src, dst); err != nil {
		return err
	}
	// Also compare the resolved paths when dst reaches src through a link.
	if rsrc, err := filepath.EvalSymlinks(src); err == nil {
		if rdst, err := filepath.EvalSymlinks(dst); err == nil {
			if err := checkDisjoint(rsrc, rdst); err != nil {
				return err
			}
		}
	}

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("removing old working copy: %w", err)
	}

	err := copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
	})
	if err != nil {
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return nil
}

func checkDisjoint(src, dst string) error {
	sep := string(filepath.Separator)
	switch {
	case dst == src:
		return fmt.Errorf("working copy %s is the project itself", dst)
	case strings.HasPrefix(dst, src+sep):
		return fmt.Errorf("working copy %s must be outside %s", dst, src)
	case strings.HasPrefix(src, dst+sep), dst == sep:
		return fmt.Errorf("working copy %s would contain %s", dst, src)
	}
	return nil
}
