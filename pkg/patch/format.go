package patch

import (
	"fmt"
	"strings"
)

func describeHunkStatuses(statuses []HunkStatus) string {
	if len(statuses) == 0 {
		return ""
	}
	var applied []string
	var failed string
	for _, status := range statuses {
		if status.Status == hunkStatusApplied {
			applied = append(applied, fmt.Sprintf("%d", status.Number))
			continue
		}
		if failed == "" {
			failed = fmt.Sprintf("No match for hunk %d.", status.Number)
		}
	}

	parts := make([]string, 0, 2)
	if len(applied) > 0 {
		parts = append(parts, fmt.Sprintf("Hunks applied: %s.", strings.Join(applied, ", ")))
	}
	if failed != "" {
		parts = append(parts, failed)
	}
	return strings.Join(parts, "\n")
}

// FormatError renders Error values into a human readable message suitable for
// surfacing to end users.
func FormatError(err *Error) string {
	if err == nil {
		return "Unknown error occurred."
	}
	message := err.Message
	if message == "" {
		message = "Unknown error occurred."
	}
	if err.Code != CodeHunkNotFound {
		if err.RelativePath != "" && !strings.Contains(message, err.RelativePath) {
			return fmt.Sprintf("%s (%s)", message, err.RelativePath)
		}
		return message
	}

	relativePath := err.RelativePath
	if relativePath == "" {
		relativePath = "unknown file"
	}
	displayPath := relativePath
	if !strings.HasPrefix(displayPath, "./") {
		displayPath = "./" + displayPath
	}

	parts := []string{fmt.Sprintf("%s in %s.", strings.TrimSuffix(message, "."), displayPath)}
	if summary := describeHunkStatuses(err.HunkStatuses); summary != "" {
		parts = append(parts, "", summary)
	}
	if err.FailedHunk != nil && len(err.FailedHunk.RawPatchLines) > 0 {
		parts = append(parts, "", "Offending hunk:")
		parts = append(parts, strings.Join(err.FailedHunk.RawPatchLines, "\n"))
	}
	if err.OriginalContent != "" {
		parts = append(parts, "", fmt.Sprintf("Full content of file: %s::::", displayPath), err.OriginalContent)
	}
	return strings.Join(parts, "\n")
}
