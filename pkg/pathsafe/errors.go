package pathsafe

import (
	"errors"
	"fmt"
)

// Common errors returned by the pathsafe package.
var (
	// ErrUnsafeSegment is returned when an entry name is absolute or
	// contains a null byte.
	ErrUnsafeSegment = errors.New("unsafe path segment")

	// ErrTraversal is returned when a resolved candidate escapes its base
	// directory.
	ErrTraversal = errors.New("path traversal attempt blocked")

	// ErrOutsideRoots is returned when a resolved file path falls outside
	// every allowed root directory.
	ErrOutsideRoots = errors.New("path outside allowed roots")
)

// Violation describes a rejected path with the offending input attached.
type Violation struct {
	Base string // Base directory the resolution was attempted against
	Name string // Offending entry name or path
	Err  error  // Underlying sentinel error
}

func (v *Violation) Error() string {
	if v.Base != "" {
		return fmt.Sprintf("%v: %q under %q", v.Err, v.Name, v.Base)
	}
	return fmt.Sprintf("%v: %q", v.Err, v.Name)
}

func (v *Violation) Unwrap() error {
	return v.Err
}
