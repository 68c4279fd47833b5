package patch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func expectCode(t *testing.T, err error, code string) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if pe.Code != code {
		t.Fatalf("expected code %s, got %s (%v)", code, pe.Code, err)
	}
	return pe
}

func TestApplyMemoryPatchCombinedOperations(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"notes.txt": "first\nsecond\n",
		"old.txt":   "keep\nchange me\n",
		"gone.txt":  "bye\n",
	}
	patchText := buildPatch(
		"*** Begin Patch",
		"*** Add File: new.txt",
		"+created",
		"*** Update File: notes.txt",
		"@@",
		" first",
		"-second",
		"+SECOND",
		"*** Update File: old.txt",
		"*** Move to: dir/new-name.txt",
		"@@",
		" keep",
		"-change me",
		"+changed",
		"*** Delete File: gone.txt",
		"*** End Patch",
	)

	updated, results, err := ApplyMemoryPatch(context.Background(), patchText, files)
	if err != nil {
		t.Fatalf("ApplyMemoryPatch returned error: %v", err)
	}

	want := []Result{
		{Status: "A", Path: "new.txt"},
		{Status: "M", Path: "notes.txt"},
		{Status: "R", Path: "dir/new-name.txt", From: "old.txt"},
		{Status: "D", Path: "gone.txt"},
	}
	if len(results) != len(want) {
		t.Fatalf("unexpected results: %#v", results)
	}
	for i, w := range want {
		got := results[i]
		if got.Status != w.Status || got.Path != w.Path || got.From != w.From {
			t.Fatalf("result %d = %#v, want %#v", i, got, w)
		}
		if w.Status != "D" && got.Checksum != Checksum(updated[w.Path]) {
			t.Fatalf("result %d has checksum %q", i, got.Checksum)
		}
	}

	if updated["new.txt"] != "created\n" {
		t.Fatalf("unexpected new.txt: %q", updated["new.txt"])
	}
	if updated["notes.txt"] != "first\nSECOND\n" {
		t.Fatalf("unexpected notes.txt: %q", updated["notes.txt"])
	}
	if updated["dir/new-name.txt"] != "keep\nchanged\n" {
		t.Fatalf("unexpected moved file: %q", updated["dir/new-name.txt"])
	}
	for _, gone := range []string{"old.txt", "gone.txt"} {
		if _, ok := updated[gone]; ok {
			t.Fatalf("expected %s to be removed", gone)
		}
	}
	if files["notes.txt"] != "first\nsecond\n" {
		t.Fatalf("input map was mutated")
	}
}

func TestStageFailsWithoutTouchingStore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]string{"a.txt": "one\n"})
	patchText := buildPatch(
		"*** Begin Patch",
		"*** Update File: a.txt",
		"@@",
		"-one",
		"+two",
		"*** Add File: a.txt",
		"+again",
		"*** End Patch",
	)
	ops, err := Parse(patchText)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	_, err = Stage(context.Background(), ops, store)
	pe := expectCode(t, err, CodeFileExists)
	if !strings.Contains(pe.Message, "a.txt") {
		t.Fatalf("unexpected message: %q", pe.Message)
	}
	if got := store.Files()["a.txt"]; got != "one\n" {
		t.Fatalf("store was modified: %q", got)
	}
}

func TestStageErrors(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"exists.txt":   "content\n",
		"dir/file.txt": "nested\n",
		"bin.dat":      "a\x00b\n",
	}
	cases := []struct {
		name string
		ops  []Operation
		code string
	}{
		{
			name: "add existing",
			ops:  []Operation{AddOperation{Path: "exists.txt", Content: "x\n"}},
			code: CodeFileExists,
		},
		{
			name: "delete missing",
			ops:  []Operation{DeleteOperation{Path: "missing.txt"}},
			code: CodeFileNotFound,
		},
		{
			name: "delete directory",
			ops:  []Operation{DeleteOperation{Path: "dir"}},
			code: CodeNotAFile,
		},
		{
			name: "update missing",
			ops:  []Operation{UpdateOperation{Path: "missing.txt", Hunks: []Hunk{{Lines: lines("-a", "+b")}}}},
			code: CodeFileNotFound,
		},
		{
			name: "update binary",
			ops:  []Operation{UpdateOperation{Path: "bin.dat", Hunks: []Hunk{{Lines: lines("-a", "+b")}}}},
			code: CodeBinaryFile,
		},
		{
			name: "move onto existing",
			ops: []Operation{UpdateOperation{
				Path:   "dir/file.txt",
				MoveTo: "exists.txt",
				Hunks:  []Hunk{{Lines: lines("-nested", "+moved")}},
			}},
			code: CodeFileExists,
		},
		{
			name: "escape root",
			ops:  []Operation{AddOperation{Path: "../outside.txt", Content: "x\n"}},
			code: CodeOutsideRoot,
		},
		{
			name: "absolute path",
			ops:  []Operation{DeleteOperation{Path: "/etc/passwd"}},
			code: CodeOutsideRoot,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Stage(context.Background(), tc.ops, NewMemoryStore(files))
			expectCode(t, err, tc.code)
		})
	}
}

func TestStageHunkFailureCarriesPath(t *testing.T) {
	t.Parallel()

	ops := []Operation{UpdateOperation{Path: "src/app.go", Hunks: []Hunk{{Lines: lines("-missing", "+found")}}}}
	_, err := Stage(context.Background(), ops, NewMemoryStore(map[string]string{"src/app.go": "package app\n"}))
	pe := expectCode(t, err, CodeHunkNotFound)
	if pe.RelativePath != "src/app.go" {
		t.Fatalf("unexpected relative path: %q", pe.RelativePath)
	}
	if !strings.HasPrefix(FormatError(pe), "Hunk context not found in ./src/app.go.") {
		t.Fatalf("unexpected formatted error:\n%s", FormatError(pe))
	}
}

func TestStagePreservesCRLF(t *testing.T) {
	t.Parallel()

	ops := []Operation{UpdateOperation{Path: "win.txt", Hunks: []Hunk{{Lines: lines(" one", "-two", "+TWO")}}}}
	updated, results, err := ApplyToMemory(context.Background(), ops, map[string]string{"win.txt": "one\r\ntwo\r\n"})
	if err != nil {
		t.Fatalf("ApplyToMemory returned error: %v", err)
	}
	if updated["win.txt"] != "one\r\nTWO\r\n" {
		t.Fatalf("unexpected content: %q", updated["win.txt"])
	}
	if len(results) != 1 || results[0].Status != "M" {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestStageNoOpUpdateDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(map[string]string{"same.txt": "a\nb\n"})
	ops := []Operation{UpdateOperation{Path: "same.txt", Hunks: []Hunk{{Lines: lines(" a", " b")}}}}
	cs, err := Stage(context.Background(), ops, store)
	if err != nil {
		t.Fatalf("Stage returned error: %v", err)
	}
	changes := cs.Changes()
	if len(changes) != 1 || changes[0].Status != StatusUnchanged {
		t.Fatalf("unexpected changes: %#v", changes)
	}
	results, err := cs.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %#v", results)
	}
	if cs.Operations() != 1 {
		t.Fatalf("unexpected operation count: %d", cs.Operations())
	}
}

func TestStageLaterOperationsSeeEarlierOnes(t *testing.T) {
	t.Parallel()

	ops := []Operation{
		AddOperation{Path: "fresh.txt", Content: "v1\n"},
		UpdateOperation{Path: "fresh.txt", Hunks: []Hunk{{Lines: lines("-v1", "+v2")}}},
	}
	updated, results, err := ApplyToMemory(context.Background(), ops, nil)
	if err != nil {
		t.Fatalf("ApplyToMemory returned error: %v", err)
	}
	if updated["fresh.txt"] != "v2\n" {
		t.Fatalf("unexpected content: %q", updated["fresh.txt"])
	}
	if len(results) != 1 || results[0].Status != "A" {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestStageHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Stage(ctx, []Operation{AddOperation{Path: "x.txt"}}, NewMemoryStore(nil))
	expectCode(t, err, CodeCanceled)
}

func TestChangeDiff(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		change Change
		header string
	}{
		{
			name:   "moved",
			change: Change{Status: StatusMoved, Path: "b.txt", MoveFrom: "a.txt", Before: "one\n", After: "two\n"},
			header: "--- a/a.txt\n+++ b/b.txt\n",
		},
		{
			name:   "added",
			change: Change{Status: StatusAdded, Path: "new.txt", After: "hi\n"},
			header: "--- /dev/null\n+++ b/new.txt\n",
		},
		{
			name:   "deleted",
			change: Change{Status: StatusDeleted, Path: "old.txt", Before: "bye\n"},
			header: "--- a/old.txt\n+++ /dev/null\n",
		},
		{
			name:   "modified to empty",
			change: Change{Status: StatusModified, Path: "log.txt", Before: "bye\n"},
			header: "--- a/log.txt\n+++ b/log.txt\n",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if diff := tc.change.Diff(); !strings.HasPrefix(diff, tc.header) {
				t.Fatalf("unexpected diff header:\n%s", diff)
			}
		})
	}
}

func TestStageOperationsOnMovedFiles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		patch       []string
		wantFiles   map[string]string
		wantResults []Result
	}{
		{
			name: "move then update",
			patch: []string{
				"*** Update File: a.txt",
				"*** Move to: b.txt",
				"-x",
				"+y",
				"*** Update File: b.txt",
				"-y",
				"+z",
			},
			wantFiles:   map[string]string{"b.txt": "z\n"},
			wantResults: []Result{{Status: "R", Path: "b.txt", From: "a.txt", Checksum: Checksum("z\n")}},
		},
		{
			name: "move then move",
			patch: []string{
				"*** Update File: a.txt",
				"*** Move to: b.txt",
				"-x",
				"+y",
				"*** Update File: b.txt",
				"*** Move to: c.txt",
				"-y",
				"+z",
			},
			wantFiles:   map[string]string{"c.txt": "z\n"},
			wantResults: []Result{{Status: "R", Path: "c.txt", From: "a.txt", Checksum: Checksum("z\n")}},
		},
		{
			name: "move then delete",
			patch: []string{
				"*** Update File: a.txt",
				"*** Move to: b.txt",
				"-x",
				"+y",
				"*** Delete File: b.txt",
			},
			wantFiles:   map[string]string{},
			wantResults: []Result{{Status: "D", Path: "a.txt"}},
		},
		{
			name: "move and move back",
			patch: []string{
				"*** Update File: a.txt",
				"*** Move to: b.txt",
				"-x",
				"+y",
				"*** Update File: b.txt",
				"*** Move to: a.txt",
				"-y",
				"+z",
			},
			wantFiles:   map[string]string{"a.txt": "z\n"},
			wantResults: []Result{{Status: "M", Path: "a.txt", Checksum: Checksum("z\n")}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			body := append([]string{"*** Begin Patch"}, tc.patch...)
			body = append(body, "*** End Patch")

			updated, results, err := ApplyMemoryPatch(context.Background(), buildPatch(body...), map[string]string{"a.txt": "x\n"})
			if err != nil {
				t.Fatalf("ApplyMemoryPatch returned error: %v", err)
			}
			if len(updated) != len(tc.wantFiles) {
				t.Fatalf("unexpected files: %#v", updated)
			}
			for path, want := range tc.wantFiles {
				if updated[path] != want {
					t.Fatalf("unexpected content for %s: %q (files %#v)", path, updated[path], updated)
				}
			}
			if len(results) != len(tc.wantResults) {
				t.Fatalf("unexpected results: %#v", results)
			}
			for i, want := range tc.wantResults {
				if results[i] != want {
					t.Fatalf("result %d = %#v, want %#v", i, results[i], want)
				}
			}
		})
	}
}

func TestApplyFilesystemChainedMoveRemovesOriginal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	ops := []Operation{
		UpdateOperation{Path: "a.txt", MoveTo: "b.txt", Hunks: []Hunk{{Lines: lines("-x", "+y")}}},
		UpdateOperation{Path: "b.txt", MoveTo: "c.txt", Hunks: []Hunk{{Lines: lines("-y", "+z")}}},
	}
	if _, err := ApplyFilesystem(context.Background(), ops, FilesystemOptions{WorkingDir: dir}); err != nil {
		t.Fatalf("ApplyFilesystem returned error: %v", err)
	}
	for _, gone := range []string{"a.txt", "b.txt"} {
		if _, err := os.Stat(filepath.Join(dir, gone)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent, got %v", gone, err)
		}
	}
	content, err := os.ReadFile(filepath.Join(dir, "c.txt"))
	if err != nil {
		t.Fatalf("failed to read c.txt: %v", err)
	}
	if string(content) != "z\n" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	if got := Summary(1); got != "Applied patch to 1 file." {
		t.Fatalf("unexpected summary: %q", got)
	}
	if got := Summary(3); got != "Applied patch to 3 files." {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestApplyFilesystemUpdatesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foo.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	ops := []Operation{UpdateOperation{Path: "foo.txt", Hunks: []Hunk{{Lines: lines("-one", "+two")}}}}
	results, err := ApplyFilesystem(context.Background(), ops, FilesystemOptions{WorkingDir: dir})
	if err != nil {
		t.Fatalf("ApplyFilesystem returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != "M" || results[0].Checksum != Checksum("two\n") {
		t.Fatalf("unexpected results: %#v", results)
	}
	content, err := os.ReadFile(filepath.Join(dir, "foo.txt"))
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if string(content) != "two\n" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestApplyFilesystemAddsAndMovesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ops := []Operation{
		AddOperation{Path: "new.txt", Content: "hello\n"},
		UpdateOperation{Path: "new.txt", MoveTo: "nested/moved.txt", Hunks: []Hunk{{Lines: lines("-hello", "+world")}}},
	}

	results, err := ApplyFilesystem(context.Background(), ops, FilesystemOptions{WorkingDir: dir})
	if err != nil {
		t.Fatalf("ApplyFilesystem returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != "R" || results[0].Path != "nested/moved.txt" || results[0].From != "new.txt" {
		t.Fatalf("unexpected results: %#v", results)
	}

	content, err := os.ReadFile(filepath.Join(dir, "nested", "moved.txt"))
	if err != nil {
		t.Fatalf("failed to read moved file: %v", err)
	}
	if string(content) != "world\n" {
		t.Fatalf("unexpected moved content: %q", content)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected new.txt to be absent, got %v", err)
	}
}

func TestApplyFilesystemRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ops := []Operation{AddOperation{Path: "../escape.txt", Content: "nope\n"}}
	_, err := ApplyFilesystem(context.Background(), ops, FilesystemOptions{WorkingDir: dir})
	expectCode(t, err, CodeOutsideRoot)
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); !os.IsNotExist(statErr) {
		t.Fatalf("escaping file was written")
	}
}

func TestApplyFilesystemRejectsBinaryAndDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), []byte{'a', 0, 'b'}, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	_, err := ApplyFilesystem(context.Background(), []Operation{
		UpdateOperation{Path: "blob.bin", Hunks: []Hunk{{Lines: lines("-a", "+b")}}},
	}, FilesystemOptions{WorkingDir: dir})
	expectCode(t, err, CodeBinaryFile)

	_, err = ApplyFilesystem(context.Background(), []Operation{DeleteOperation{Path: "sub"}}, FilesystemOptions{WorkingDir: dir})
	expectCode(t, err, CodeNotAFile)
}

func TestApplyFilesystemDryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	patchText := buildPatch(
		"*** Begin Patch",
		"*** Add File: planned.txt",
		"+content",
		"*** End Patch",
	)
	results, err := ApplyFilesystemPatch(context.Background(), patchText, FilesystemOptions{WorkingDir: dir, DryRun: true})
	if err != nil {
		t.Fatalf("ApplyFilesystemPatch returned error: %v", err)
	}
	if len(results) != 1 || results[0].Status != "A" || results[0].Checksum != "" {
		t.Fatalf("unexpected results: %#v", results)
	}
	if _, err := os.Stat(filepath.Join(dir, "planned.txt")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote planned.txt")
	}
}
