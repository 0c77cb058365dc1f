package fat

import (
	"strings"

	"github.com/dargueta/fatfs/ferrors"
)

// splitPath splits a path on '/', discarding empty segments so leading,
// trailing, and repeated separators never produce a spurious step.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// traverseEntries walks path from the root, invoking findEntry at each
// segment, and returns the entry resolved at every step, in order. Every
// non-terminal segment must resolve to a directory; the last segment may
// name either a file or a directory and is returned unconditionally.
func (fs *FS) traverseEntries(path string) ([]*Dirent, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, ferrors.InvalidArgument.WithMessage("fat: empty path")
	}

	dir := fs.root
	entries := make([]*Dirent, 0, len(segments))

	for i, seg := range segments {
		entry, err := dir.findEntry(seg)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)

		if i == len(segments)-1 {
			break
		}
		if !entry.IsDir() {
			return nil, ferrors.NotFound.WithMessagef(
				"fat: %q is not a directory", seg)
		}

		dir, err = dir.childDirectory(entry)
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// traverse walks path and returns only its final entry.
func (fs *FS) traverse(path string) (*Dirent, error) {
	entries, err := fs.traverseEntries(path)
	if err != nil {
		return nil, err
	}
	return entries[len(entries)-1], nil
}

// traverseParent walks every segment of path but the last, returning the
// directory that should hold the final segment and the final segment's
// normalized name. Operations that mutate a directory's child list
// (create, mkdir, delete, rename) use this instead of traverse, since
// they need the parent CachedDirectory itself, not an already-resolved
// entry.
func (fs *FS) traverseParent(path string) (*CachedDirectory, string, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, "", ferrors.InvalidArgument.WithMessage("fat: empty path")
	}

	dir := fs.root
	for _, seg := range segments[:len(segments)-1] {
		entry, err := dir.findEntry(seg)
		if err != nil {
			return nil, "", err
		}
		if !entry.IsDir() {
			return nil, "", ferrors.NotFound.WithMessagef(
				"fat: %q is not a directory", seg)
		}

		dir, err = dir.childDirectory(entry)
		if err != nil {
			return nil, "", err
		}
	}

	return dir, segments[len(segments)-1], nil
}
