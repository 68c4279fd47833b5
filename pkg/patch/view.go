package patch

// OperationView is the JSON shape of an Operation, tagged with its kind.
type OperationView struct {
	Type    OperationType `json:"type"`
	Path    string        `json:"path"`
	MoveTo  string        `json:"move_to,omitempty"`
	Content *string       `json:"content,omitempty"`
	Hunks   []Hunk        `json:"hunks,omitempty"`
}

// Views converts operations for JSON output.
func Views(operations []Operation) []OperationView {
	views := make([]OperationView, 0, len(operations))
	for _, op := range operations {
		view := OperationView{Type: op.Kind(), Path: op.TargetPath()}
		switch op := op.(type) {
		case AddOperation:
			content := op.Content
			view.Content = &content
		case UpdateOperation:
			view.MoveTo = op.MoveTo
			view.Hunks = op.Hunks
		}
		views = append(views, view)
	}
	return views
}
