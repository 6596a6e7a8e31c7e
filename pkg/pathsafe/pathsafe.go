// Package pathsafe guards every filesystem access the monitor performs.
//
// Log directories are walked using names taken from directory entries, and
// those names are untrusted: a crafted entry could point outside the log
// tree via "..", an absolute path, or a null byte. ResolveUnder validates a
// single child name against its base directory; InAllowedRoots is an
// independent second check applied to fully resolved paths right before a
// file is opened, so a symlink or entry-name trick has to defeat both.
//
// Example usage:
//
//	w := pathsafe.NewWalker(logger.Default())
//	files, err := w.Find("/home/user/.openclaw/cron/runs")
package pathsafe

import (
	"path/filepath"
	"strings"
)

// ResolveUnder resolves entry name against base and verifies the result
// stays at or strictly inside the resolved base directory.
//
// Parameters:
//   - base: Trusted base directory
//   - name: Untrusted entry name (may be a relative sub-path)
//
// Returns:
//   - The resolved absolute candidate path
//   - *Violation wrapping ErrUnsafeSegment or ErrTraversal on rejection
func ResolveUnder(base, name string) (string, error) {
	if filepath.IsAbs(name) || strings.ContainsRune(name, 0) {
		return "", &Violation{Base: base, Name: name, Err: ErrUnsafeSegment}
	}

	baseResolved, err := filepath.Abs(base)
	if err != nil {
		return "", &Violation{Base: base, Name: name, Err: ErrTraversal}
	}
	baseResolved = filepath.Clean(baseResolved)

	candidate := filepath.Clean(filepath.Join(baseResolved, name))

	if candidate != baseResolved &&
		!strings.HasPrefix(candidate, baseResolved+string(filepath.Separator)) {
		return "", &Violation{Base: base, Name: name, Err: ErrTraversal}
	}

	return candidate, nil
}

// InAllowedRoots reports whether target, once resolved, equals or falls
// strictly inside one of the allowed root directories.
//
// A root that is merely a string prefix of target does not count: the
// match must end on a path separator boundary, so "/a/.openclawEVIL"
// is not inside root "/a/.openclaw".
func InAllowedRoots(target string, roots []string) bool {
	targetResolved, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	targetResolved = filepath.Clean(targetResolved)

	for _, root := range roots {
		rootResolved, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rootResolved = filepath.Clean(rootResolved)

		if targetResolved == rootResolved ||
			strings.HasPrefix(targetResolved, rootResolved+string(filepath.Separator)) {
			return true
		}
	}

	return false
}
