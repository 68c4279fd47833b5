package patch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff renders a line-level preview between before and after. Removed lines
// are prefixed with "-", added lines with "+" and unchanged lines with a space.
// An empty fromPath or toPath is shown as /dev/null.
func Diff(fromPath, toPath, before, after string) string {
	var b strings.Builder
	if fromPath == "" {
		b.WriteString("--- /dev/null\n")
	} else {
		b.WriteString("--- a/" + fromPath + "\n")
	}
	if toPath == "" {
		b.WriteString("+++ /dev/null\n")
	} else {
		b.WriteString("+++ b/" + toPath + "\n")
	}

	dmp := diffmatchpatch.New()
	a, c, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, c, false), lines)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			b.WriteString(prefix + line + "\n")
		}
	}
	return b.String()
}
