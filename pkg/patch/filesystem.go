package patch

import "context"

// FilesystemOptions configures ApplyFilesystem.
type FilesystemOptions struct {
	// WorkingDir is the project root; it defaults to the process working directory.
	WorkingDir string
	// DryRun stages the patch without writing anything.
	DryRun bool
}

// ApplyFilesystem applies operations to files below opts.WorkingDir.
func ApplyFilesystem(ctx context.Context, operations []Operation, opts FilesystemOptions) ([]Result, error) {
	store, err := NewFilesystemStore(opts.WorkingDir)
	if err != nil {
		return nil, err
	}
	cs, err := Stage(ctx, operations, store)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return planned(cs), nil
	}
	return cs.Commit(ctx)
}

// ApplyFilesystemPatch parses a raw patch payload and applies it to the filesystem.
func ApplyFilesystemPatch(ctx context.Context, patchBody string, opts FilesystemOptions) ([]Result, error) {
	operations, err := Parse(patchBody)
	if err != nil {
		return nil, err
	}
	return ApplyFilesystem(ctx, operations, opts)
}

func planned(cs *Changeset) []Result {
	var results []Result
	for _, change := range cs.Changes() {
		if change.Status == StatusUnchanged {
			continue
		}
		results = append(results, Result{Status: string(change.Status), Path: change.Path, From: change.MoveFrom})
	}
	return results
}
