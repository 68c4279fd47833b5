package patch

import (
	"strings"
)

const hunkNotFoundMessage = "Hunk context not found"

// ApplyHunks applies hunks in order to originalText and returns the updated
// text. Each hunk is located after the previous one (falling back to a scan
// from the top of the file once), so repeated context binds to the intended
// occurrence. A non-empty result always ends with a newline.
//
// When a hunk cannot be located the whole call fails with an *Error carrying
// CodeHunkNotFound, the statuses of the hunks tried so far and the raw lines of
// the failing hunk.
func ApplyHunks(originalText string, hunks []Hunk) (string, error) {
	content := splitLines(originalText)
	searchStart := 0
	statuses := make([]HunkStatus, 0, len(hunks))

	for index, hunk := range hunks {
		number := index + 1
		next, start, ok := applyHunk(content, hunk, searchStart)
		if !ok {
			statuses = append(statuses, HunkStatus{Number: number, Status: hunkStatusNoMatch})
			return "", &Error{
				Message:         hunkNotFoundMessage,
				Code:            CodeHunkNotFound,
				OriginalContent: originalText,
				HunkStatuses:    statuses,
				FailedHunk:      &FailedHunk{Number: number, RawPatchLines: hunk.RawLines()},
			}
		}
		content, searchStart = next, start
		statuses = append(statuses, HunkStatus{Number: number, Status: hunkStatusApplied})
	}

	if len(content) > 0 && content[len(content)-1] != "" {
		content = append(content, "")
	}
	return strings.Join(content, "\n"), nil
}

// applyHunk returns the updated buffer and the next search start.
func applyHunk(content []string, hunk Hunk, searchStart int) ([]string, int, bool) {
	if hunk.Header != "" {
		headerIndex := findSequence(content, []string{hunk.Header}, searchStart, false)
		if headerIndex < 0 {
			return nil, 0, false
		}
		searchStart = headerIndex + 1
	}

	oldLines := hunk.OldLines()
	newLines := hunk.NewLines()

	if len(oldLines) == 0 {
		// splitLines drops the empty fragment after a trailing newline, so
		// len(content) appends after the last real line.
		insertion := len(content)
		content = splice(content, insertion, 0, newLines)
		return content, insertion + len(newLines), true
	}

	match := findSequence(content, oldLines, searchStart, hunk.EndOfFile)
	if match < 0 && searchStart > 0 && !hunk.EndOfFile {
		match = findSequence(content, oldLines, 0, false)
	}
	if match < 0 {
		return nil, 0, false
	}

	content = splice(content, match, len(oldLines), newLines)
	return content, match + len(newLines), true
}

func splice(target []string, index, deleteCount int, replacement []string) []string {
	if deleteCount == 0 && len(replacement) == 0 {
		return target
	}
	result := make([]string, 0, len(target)-deleteCount+len(replacement))
	result = append(result, target[:index]...)
	result = append(result, replacement...)
	result = append(result, target[index+deleteCount:]...)
	return result
}
