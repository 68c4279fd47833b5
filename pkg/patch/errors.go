package patch

import (
	"errors"
	"fmt"
)

// ErrPatchFailed is the single failure kind behind every *Error. Callers that
// only care whether a patch failed can test with errors.Is.
var ErrPatchFailed = errors.New("patch failed")

// Error codes attached to *Error values.
const (
	CodeParse        = "PARSE_ERROR"
	CodeUnsafePath   = "UNSAFE_PATH"
	CodeHunkNotFound = "HUNK_NOT_FOUND"
	CodeFileExists   = "FILE_EXISTS"
	CodeFileNotFound = "FILE_NOT_FOUND"
	CodeNotAFile     = "NOT_A_FILE"
	CodeBinaryFile   = "BINARY_FILE"
	CodeOutsideRoot  = "OUTSIDE_ROOT"
	CodeIO           = "IO_ERROR"
	CodeCanceled     = "CANCELED"
)

const (
	hunkStatusApplied = "applied"
	hunkStatusNoMatch = "no-match"
)

// HunkStatus tracks how a hunk was applied when processing a patch.
type HunkStatus struct {
	Number int    `json:"number"`
	Status string `json:"status"`
}

// FailedHunk stores the raw lines of the hunk that could not be applied.
type FailedHunk struct {
	Number        int      `json:"number"`
	RawPatchLines []string `json:"rawPatchLines"`
}

// Error represents a structured failure while parsing or applying a patch.
type Error struct {
	Message         string
	Code            string
	RelativePath    string
	OriginalContent string
	HunkStatuses    []HunkStatus
	FailedHunk      *FailedHunk
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return "patch error"
}

// Unwrap lets errors.Is match ErrPatchFailed.
func (e *Error) Unwrap() error {
	return ErrPatchFailed
}

func failf(code, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Code: code}
}

func parseFailf(format string, args ...any) *Error {
	return failf(CodeParse, format, args...)
}

// asPatchError converts arbitrary errors into *Error, keeping existing metadata.
func asPatchError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return &Error{Message: err.Error(), Code: code}
}
