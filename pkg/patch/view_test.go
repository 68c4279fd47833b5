package patch

import (
	"encoding/json"
	"testing"
)

func TestViewsMarshal(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		AddOperation{Path: "empty.txt"},
		DeleteOperation{Path: "gone.txt"},
		UpdateOperation{Path: "a.txt", MoveTo: "b.txt", Hunks: []Hunk{{Header: "func a", Lines: lines("-x", "+y"), EndOfFile: true}}},
	}
	data, err := json.Marshal(Views(ops))
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}

	want := `[{"type":"add","path":"empty.txt","content":""},` +
		`{"type":"delete","path":"gone.txt"},` +
		`{"type":"update","path":"a.txt","move_to":"b.txt","hunks":[{"header":"func a","lines":[{"prefix":"-","text":"x"},{"prefix":"+","text":"y"}],"end_of_file":true}]}]`
	if string(data) != want {
		t.Fatalf("unexpected JSON:\n%s\nwant\n%s", data, want)
	}
}
