package patch

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/zeebo/xxh3"
)

// ChangeStatus describes what committing a Change does to the store.
type ChangeStatus string

const (
	StatusAdded     ChangeStatus = "A"
	StatusModified  ChangeStatus = "M"
	StatusDeleted   ChangeStatus = "D"
	StatusMoved     ChangeStatus = "R"
	StatusUnchanged ChangeStatus = "U"
)

// Change is the staged effect of a patch on one file.
type Change struct {
	Status   ChangeStatus `json:"status"`
	Path     string       `json:"path"`
	MoveFrom string       `json:"move_from,omitempty"`
	Before   string       `json:"before"`
	After    string       `json:"after"`

	mode fs.FileMode
}

// Diff renders a unified-style preview of the change.
func (c Change) Diff() string {
	from, to := c.Path, c.Path
	switch c.Status {
	case StatusAdded:
		from = ""
	case StatusDeleted:
		to = ""
	case StatusMoved:
		from = c.MoveFrom
	}
	return Diff(from, to, c.Before, c.After)
}

// Result describes the outcome for a single file once a patch is committed.
type Result struct {
	Status   string `json:"status"`
	Path     string `json:"path"`
	From     string `json:"from,omitempty"`
	Checksum string `json:"checksum,omitempty"`
}

// Changeset holds the staged effect of a list of operations on a Store.
// Nothing touches the store until Commit.
type Changeset struct {
	store      Store
	operations int
	order      []string
	entries    map[string]*entry
}

type entry struct {
	key            string
	origExists     bool
	origContent    string
	isDir          bool
	exists         bool
	content        string
	mode           fs.FileMode
	touched        bool
	// movedFrom is the store key the content originally came from when the
	// entry is the end of a chain of moves.
	movedFrom      string
	unchangedTouch bool
}

// Stage executes operations in order against an overlay of store, so later
// operations observe earlier ones. Any failure aborts the whole patch.
func Stage(ctx context.Context, operations []Operation, store Store) (*Changeset, error) {
	if store == nil {
		return nil, failf(CodeIO, "nil store")
	}
	cs := &Changeset{store: store, operations: len(operations), entries: make(map[string]*entry)}
	for _, op := range operations {
		if err := ctx.Err(); err != nil {
			return nil, failf(CodeCanceled, "%s", err.Error())
		}
		var err error
		switch op := op.(type) {
		case AddOperation:
			err = cs.add(op)
		case DeleteOperation:
			err = cs.delete(op)
		case UpdateOperation:
			err = cs.update(op)
		default:
			err = failf(CodeParse, "unsupported patch operation for %s: %s", op.TargetPath(), op.Kind())
		}
		if err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (cs *Changeset) lookup(path string) (*entry, error) {
	key, err := cs.store.Resolve(path)
	if err != nil {
		return nil, err
	}
	if e, ok := cs.entries[key]; ok {
		return e, nil
	}
	info, err := cs.store.Stat(key)
	if err != nil {
		return nil, err
	}
	e := &entry{key: key, isDir: info.IsDir, mode: info.Mode}
	if info.Exists && !info.IsDir {
		data, err := cs.store.ReadFile(key)
		if err != nil {
			return nil, err
		}
		e.origExists, e.exists = true, true
		e.origContent, e.content = string(data), string(data)
	}
	cs.entries[key] = e
	cs.order = append(cs.order, key)
	return e, nil
}

func (cs *Changeset) add(op AddOperation) error {
	e, err := cs.lookup(op.Path)
	if err != nil {
		return err
	}
	if e.exists || e.isDir {
		return failf(CodeFileExists, "File already exists: %s", op.Path)
	}
	e.exists, e.content, e.touched, e.movedFrom = true, op.Content, true, ""
	return nil
}

func (cs *Changeset) delete(op DeleteOperation) error {
	e, err := cs.lookup(op.Path)
	if err != nil {
		return err
	}
	if e.isDir {
		return failf(CodeNotAFile, "Path is not a file: %s", op.Path)
	}
	if !e.exists {
		return failf(CodeFileNotFound, "File not found: %s", op.Path)
	}
	e.exists, e.content, e.touched, e.movedFrom = false, "", true, ""
	return nil
}

func (cs *Changeset) update(op UpdateOperation) error {
	source, err := cs.lookup(op.Path)
	if err != nil {
		return err
	}
	if source.isDir {
		return failf(CodeNotAFile, "Path is not a file: %s", op.Path)
	}
	if !source.exists {
		return failf(CodeFileNotFound, "File not found: %s", op.Path)
	}
	if strings.IndexByte(source.content, 0) >= 0 {
		return failf(CodeBinaryFile, "File %s is binary", op.Path)
	}

	crlf := strings.Contains(source.content, "\r\n")
	updated, err := ApplyHunks(source.content, op.Hunks)
	if err != nil {
		pe := asPatchError(err, CodeHunkNotFound)
		pe.RelativePath = op.Path
		return pe
	}
	if crlf {
		updated = strings.ReplaceAll(updated, "\n", "\r\n")
	}

	target := source
	if op.MoveTo != "" {
		moved, err := cs.lookup(op.MoveTo)
		if err != nil {
			return err
		}
		if moved != source {
			if moved.exists || moved.isDir {
				return failf(CodeFileExists, "File already exists: %s", op.MoveTo)
			}
			origin := source.key
			if source.movedFrom != "" {
				origin = source.movedFrom
			}
			moved.exists, moved.mode, moved.touched = true, source.mode, true
			if origin != moved.key {
				moved.movedFrom = origin
			}
			source.exists, source.content, source.touched, source.movedFrom = false, "", true, ""
			target = moved
		}
	}

	if target == source && updated == source.content {
		source.unchangedTouch = true
		return nil
	}
	target.content = updated
	target.touched = true
	return nil
}

// Operations returns how many operations were staged.
func (cs *Changeset) Operations() int {
	return cs.operations
}

// Changes lists the staged per-file effects in first-touch order. A file
// moved (possibly through several hops) is reported once as R from its
// original path; an original that ends up nowhere is reported as D.
func (cs *Changeset) Changes() []Change {
	claimed := make(map[string]bool)
	for _, e := range cs.entries {
		if e.exists && e.movedFrom != "" {
			claimed[e.movedFrom] = true
		}
	}

	var changes []Change
	for _, key := range cs.order {
		e := cs.entries[key]
		if !e.touched {
			if e.unchangedTouch {
				changes = append(changes, Change{Status: StatusUnchanged, Path: key, Before: e.origContent, After: e.origContent})
			}
			continue
		}
		switch {
		case e.exists && e.movedFrom != "":
			before := ""
			if src, ok := cs.entries[e.movedFrom]; ok {
				before = src.origContent
			}
			changes = append(changes, Change{Status: StatusMoved, Path: key, MoveFrom: e.movedFrom, Before: before, After: e.content, mode: e.mode})
		case e.exists && !e.origExists:
			changes = append(changes, Change{Status: StatusAdded, Path: key, After: e.content, mode: e.mode})
		case e.exists && e.content != e.origContent:
			changes = append(changes, Change{Status: StatusModified, Path: key, Before: e.origContent, After: e.content, mode: e.mode})
		case e.exists:
			changes = append(changes, Change{Status: StatusUnchanged, Path: key, Before: e.origContent, After: e.content})
		case e.origExists && !claimed[key]:
			changes = append(changes, Change{Status: StatusDeleted, Path: key, Before: e.origContent})
		}
	}
	return changes
}

// Commit writes the staged changes to the store. Files written before a
// failing write are not rolled back.
func (cs *Changeset) Commit(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, change := range cs.Changes() {
		if err := ctx.Err(); err != nil {
			return results, failf(CodeCanceled, "%s", err.Error())
		}
		switch change.Status {
		case StatusAdded, StatusModified:
			if err := cs.store.WriteFile(change.Path, []byte(change.After), change.mode); err != nil {
				return results, err
			}
		case StatusMoved:
			if err := cs.store.WriteFile(change.Path, []byte(change.After), change.mode); err != nil {
				return results, err
			}
			if src, ok := cs.entries[change.MoveFrom]; ok && !src.exists {
				if err := cs.store.Remove(change.MoveFrom); err != nil {
					return results, err
				}
			}
		case StatusDeleted:
			if err := cs.store.Remove(change.Path); err != nil {
				return results, err
			}
		default:
			continue
		}
		result := Result{Status: string(change.Status), Path: change.Path, From: change.MoveFrom}
		if change.Status != StatusDeleted {
			result.Checksum = Checksum(change.After)
		}
		results = append(results, result)
	}
	return results, nil
}

// Checksum fingerprints file content.
func Checksum(content string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(content))
}

// Summary renders the one-line outcome reported after a successful apply.
func Summary(operations int) string {
	suffix := "s"
	if operations == 1 {
		suffix = ""
	}
	return fmt.Sprintf("Applied patch to %d file%s.", operations, suffix)
}
