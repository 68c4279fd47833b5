package patch

import "strings"

const (
	beginMarker     = "*** Begin Patch"
	endMarker       = "*** End Patch"
	addPrefix       = "*** Add File: "
	updatePrefix    = "*** Update File: "
	deletePrefix    = "*** Delete File: "
	movePrefix      = "*** Move to: "
	endOfFileMarker = "*** End of File"
)

var heredocOpeners = map[string]struct{}{
	"<<EOF":   {},
	"<<'EOF'": {},
	`<<"EOF"`: {},
}

// splitLines splits on \n, \r\n and \r. A trailing separator does not produce
// an empty final line and empty input yields no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// unwrapHeredoc strips a surrounding <<EOF ... EOF shell wrapper.
func unwrapHeredoc(lines []string) []string {
	if len(lines) < 4 {
		return lines
	}
	first := strings.TrimSpace(lines[0])
	last := strings.TrimSpace(lines[len(lines)-1])
	if _, ok := heredocOpeners[first]; !ok || !strings.HasSuffix(last, "EOF") {
		return lines
	}
	return lines[1 : len(lines)-1]
}

func findMarker(lines []string, marker string, start int) int {
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == marker {
			return i
		}
	}
	return -1
}

func trimLeft(s string) string {
	return strings.TrimLeftFunc(s, isWhitespace)
}

// isPatchHeaderLine reports whether line starts a new file directive.
func isPatchHeaderLine(line string) bool {
	if line == "" || isDiffPrefix(line[0]) {
		return false
	}
	trimmed := trimLeft(line)
	if trimmed == endOfFileMarker {
		return false
	}
	return strings.HasPrefix(trimmed, "*** ")
}

func isHunkHeaderLine(line string) bool {
	if line == "" || isDiffPrefix(line[0]) {
		return false
	}
	return strings.HasPrefix(trimLeft(line), "@@")
}

func isDiffLine(line string) bool {
	return line == "" || isDiffPrefix(line[0])
}
