package workspace

import "errors"

var (
	// ErrProjectNotFound indicates the project directory does not exist
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectExists indicates a project with the same id already exists
	ErrProjectExists = errors.New("project already exists")

	// ErrInvalidPath indicates a project id or relative path that is empty,
	// absolute, or escapes the project root
	ErrInvalidPath = errors.New("invalid path")

	// ErrEntryExists indicates the file or directory to create already exists
	ErrEntryExists = errors.New("file or directory already exists")

	// ErrEntryNotFound indicates the file inside the project does not exist
	ErrEntryNotFound = errors.New("file not found")

	// ErrNotAFile indicates a read was attempted on a directory
	ErrNotAFile = errors.New("path is a directory")
)

// IsNotFound reports whether err means a missing project or file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProjectNotFound) || errors.Is(err, ErrEntryNotFound)
}

// IsInvalid reports whether err was caused by caller input.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrNotAFile)
}

// IsConflict reports whether err means the target already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrProjectExists) || errors.Is(err, ErrEntryExists)
}
