package patch

import "strings"

// EnsureSafePath rejects paths carrying raw control characters (U+0000-U+001F,
// U+007F) or literal escape sequences such as `\n`. It does not reject ".."
// segments; confining paths to a root is up to the Store.
func EnsureSafePath(path, label string) error {
	if hasControlChars(path) || hasEscapedControl(path) {
		return failf(CodeUnsafePath, "%s path contains control characters or escape sequences", label)
	}
	return nil
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if r <= 0x1F || r == 0x7F {
			return true
		}
	}
	return false
}

func hasEscapedControl(s string) bool {
	for i := strings.IndexByte(s, '\\'); i >= 0 && i+1 < len(s); {
		switch s[i+1] {
		case 'n', 'r', 't':
			return true
		}
		next := strings.IndexByte(s[i+1:], '\\')
		if next < 0 {
			return false
		}
		i += 1 + next
	}
	return false
}
