package patch

import "context"

// ApplyToMemory applies operations to an in-memory document store represented by a map.
// The provided map is copied before mutation and the updated snapshot is returned.
func ApplyToMemory(ctx context.Context, operations []Operation, files map[string]string) (map[string]string, []Result, error) {
	store := NewMemoryStore(files)
	cs, err := Stage(ctx, operations, store)
	if err != nil {
		return nil, nil, err
	}
	results, err := cs.Commit(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store.Files(), results, nil
}

// ApplyMemoryPatch parses a raw patch payload and applies it to an in-memory map of files.
func ApplyMemoryPatch(ctx context.Context, patchBody string, files map[string]string) (map[string]string, []Result, error) {
	operations, err := Parse(patchBody)
	if err != nil {
		return nil, nil, err
	}
	return ApplyToMemory(ctx, operations, files)
}
