package patch

import (
	"strings"
)

// Parse converts the textual representation of an apply_patch payload into a
// slice of operations that can later be applied. Parsing is all-or-nothing:
// any structural problem returns an *Error and no operations.
func Parse(input string) ([]Operation, error) {
	lines := unwrapHeredoc(splitLines(input))

	start := findMarker(lines, beginMarker, 0)
	if start < 0 {
		return nil, parseFailf("patch must include %s", beginMarker)
	}
	end := findMarker(lines, endMarker, start+1)
	if end < 0 {
		return nil, parseFailf("patch must include %s", endMarker)
	}

	p := &parser{lines: lines, index: start + 1, end: end}
	operations, err := p.parse()
	if err != nil {
		return nil, err
	}
	if len(operations) == 0 {
		return nil, parseFailf("patch did not contain any operations")
	}
	return operations, nil
}

// ExtractPatchText picks the patch body from tool arguments, accepting
// "patch" as an alias for "input".
func ExtractPatchText(input, patch *string) (string, error) {
	if input != nil {
		return *input, nil
	}
	if patch != nil {
		return *patch, nil
	}
	return "", parseFailf("input must be a non-empty string")
}

type parser struct {
	lines []string
	index int
	end   int
}

func (p *parser) more() bool {
	return p.index < p.end
}

func (p *parser) current() string {
	return p.lines[p.index]
}

func (p *parser) parse() ([]Operation, error) {
	var operations []Operation
	for p.more() {
		line := p.current()
		header := trimLeft(line)

		switch {
		case strings.HasPrefix(header, addPrefix):
			op, err := p.parseAdd(header)
			if err != nil {
				return nil, err
			}
			operations = append(operations, op)
		case strings.HasPrefix(header, deletePrefix):
			path, err := directivePath(header, deletePrefix, "Delete File")
			if err != nil {
				return nil, err
			}
			operations = append(operations, DeleteOperation{Path: path})
			p.index++
		case strings.HasPrefix(header, updatePrefix):
			op, err := p.parseUpdate(header)
			if err != nil {
				return nil, err
			}
			operations = append(operations, op)
		case strings.TrimSpace(line) == "":
			p.index++
		default:
			return nil, parseFailf("Unexpected patch line: %s", line)
		}
	}
	return operations, nil
}

func directivePath(header, prefix, label string) (string, error) {
	path := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if path == "" {
		return "", parseFailf("%s requires a path", label)
	}
	if err := EnsureSafePath(path, label); err != nil {
		return "", err
	}
	return path, nil
}

func (p *parser) parseAdd(header string) (Operation, error) {
	path, err := directivePath(header, addPrefix, "Add File")
	if err != nil {
		return nil, err
	}
	p.index++

	var content []string
	for p.more() && !isPatchHeaderLine(p.current()) {
		line := p.current()
		if !strings.HasPrefix(line, "+") {
			return nil, parseFailf("Add File lines must start with +")
		}
		content = append(content, line[1:])
		p.index++
	}

	op := AddOperation{Path: path}
	if len(content) > 0 {
		op.Content = strings.Join(content, "\n") + "\n"
	}
	return op, nil
}

func (p *parser) parseUpdate(header string) (Operation, error) {
	path, err := directivePath(header, updatePrefix, "Update File")
	if err != nil {
		return nil, err
	}
	p.index++

	op := UpdateOperation{Path: path}
	if p.more() && isPatchHeaderLine(p.current()) {
		if moveLine := trimLeft(p.current()); strings.HasPrefix(moveLine, movePrefix) {
			moveTo, err := directivePath(moveLine, movePrefix, "Move to")
			if err != nil {
				return nil, err
			}
			op.MoveTo = moveTo
			p.index++
		}
	}

	for p.more() && !isPatchHeaderLine(p.current()) {
		if strings.TrimSpace(p.current()) == "" {
			p.index++
			continue
		}
		hunk, err := p.parseHunk(len(op.Hunks) == 0)
		if err != nil {
			return nil, err
		}
		op.Hunks = append(op.Hunks, hunk)
	}

	if len(op.Hunks) == 0 {
		return nil, parseFailf("Update File requires at least one hunk")
	}
	return op, nil
}

func (p *parser) parseHunk(first bool) (Hunk, error) {
	var hunk Hunk
	switch line := p.current(); {
	case isHunkHeaderLine(line):
		trimmed := strings.TrimSpace(line)
		hunk.Header = strings.TrimSpace(strings.TrimPrefix(trimmed, "@@"))
		p.index++
	case first && isDiffLine(line):
		// the first hunk may omit its @@ line
	default:
		return Hunk{}, parseFailf("Expected @@ hunk header")
	}

	for p.more() && !isHunkHeaderLine(p.current()) && !isPatchHeaderLine(p.current()) {
		line := p.current()
		if line == endOfFileMarker {
			hunk.EndOfFile = true
			p.index++
			break
		}
		if line == "" {
			hunk.Lines = append(hunk.Lines, HunkLine{Prefix: PrefixContext})
			p.index++
			continue
		}
		if !isDiffPrefix(line[0]) {
			if len(hunk.Lines) == 0 {
				return Hunk{}, parseFailf("Hunk lines must start with space, +, or -")
			}
			break
		}
		hunk.Lines = append(hunk.Lines, HunkLine{Prefix: LinePrefix(line[0]), Text: line[1:]})
		p.index++
	}

	if len(hunk.Lines) == 0 {
		return Hunk{}, parseFailf("Empty hunk in Update File")
	}
	return hunk, nil
}
