package patch

import "strings"

// OperationType identifies the kind of change described by a patch operation.
type OperationType string

const (
	// OperationAdd represents an "*** Add File" directive.
	OperationAdd OperationType = "add"
	// OperationUpdate represents an "*** Update File" directive.
	OperationUpdate OperationType = "update"
	// OperationDelete represents an "*** Delete File" directive.
	OperationDelete OperationType = "delete"
)

// Operation is one of AddOperation, DeleteOperation or UpdateOperation.
type Operation interface {
	Kind() OperationType
	TargetPath() string
	operation()
}

// AddOperation creates a new file with Content.
type AddOperation struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DeleteOperation removes an existing file.
type DeleteOperation struct {
	Path string `json:"path"`
}

// UpdateOperation patches an existing file and optionally moves it to MoveTo.
type UpdateOperation struct {
	Path   string `json:"path"`
	MoveTo string `json:"move_to,omitempty"`
	Hunks  []Hunk `json:"hunks"`
}

func (AddOperation) Kind() OperationType    { return OperationAdd }
func (DeleteOperation) Kind() OperationType { return OperationDelete }
func (UpdateOperation) Kind() OperationType { return OperationUpdate }

func (op AddOperation) TargetPath() string    { return op.Path }
func (op DeleteOperation) TargetPath() string { return op.Path }
func (op UpdateOperation) TargetPath() string { return op.Path }

func (AddOperation) operation()    {}
func (DeleteOperation) operation() {}
func (UpdateOperation) operation() {}

// LinePrefix marks a hunk line as context, addition or removal.
type LinePrefix byte

const (
	PrefixContext LinePrefix = ' '
	PrefixAdd     LinePrefix = '+'
	PrefixRemove  LinePrefix = '-'
)

func isDiffPrefix(b byte) bool {
	return b == byte(PrefixContext) || b == byte(PrefixAdd) || b == byte(PrefixRemove)
}

// MarshalText renders the prefix as its single patch character.
func (p LinePrefix) MarshalText() ([]byte, error) {
	return []byte{byte(p)}, nil
}

// HunkLine is a single body line of a hunk without its prefix character.
type HunkLine struct {
	Prefix LinePrefix `json:"prefix"`
	Text   string     `json:"text"`
}

// Hunk is a contiguous block of context, removed and added lines.
//
// Header holds the optional "@@ <context>" text used to move the search start
// forward before matching. An empty Header means the hunk had none. EndOfFile
// anchors the hunk to the tail of the file.
type Hunk struct {
	Header    string     `json:"header,omitempty"`
	Lines     []HunkLine `json:"lines"`
	EndOfFile bool       `json:"end_of_file,omitempty"`
}

// OldLines returns the lines the hunk expects to find (context and removals).
func (h Hunk) OldLines() []string {
	var out []string
	for _, line := range h.Lines {
		if line.Prefix == PrefixContext || line.Prefix == PrefixRemove {
			out = append(out, line.Text)
		}
	}
	return out
}

// NewLines returns the lines that replace the matched window (context and additions).
func (h Hunk) NewLines() []string {
	var out []string
	for _, line := range h.Lines {
		if line.Prefix == PrefixContext || line.Prefix == PrefixAdd {
			out = append(out, line.Text)
		}
	}
	return out
}

// RawLines renders the hunk back into apply_patch text.
func (h Hunk) RawLines() []string {
	raw := make([]string, 0, len(h.Lines)+2)
	if h.Header != "" {
		raw = append(raw, "@@ "+h.Header)
	} else {
		raw = append(raw, "@@")
	}
	for _, line := range h.Lines {
		raw = append(raw, string(rune(line.Prefix))+line.Text)
	}
	if h.EndOfFile {
		raw = append(raw, endOfFileMarker)
	}
	return raw
}

// String implements fmt.Stringer.
func (h Hunk) String() string {
	return strings.Join(h.RawLines(), "\n")
}
