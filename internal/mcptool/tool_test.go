package mcptool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/asynkron/applypatch/internal/journal"
)

var testImpl = &mcp.Implementation{Name: "applypatch-test", Version: "0.1.0"}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memoryRecorder) Record(_ context.Context, entry journal.Entry) (journal.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return entry, nil
}

func session(t *testing.T, opts Options) *mcp.ClientSession {
	t.Helper()
	srv, err := NewServer("test", opts)
	require.NoError(t, err)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, args map[string]any) (string, bool) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: ToolName, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent")
	return text.Text, result.IsError
}

func TestToolAppliesPatch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("alpha\nbeta\n"), 0o644))
	recorder := &memoryRecorder{}
	cs := session(t, Options{Root: root, Journal: recorder})

	text, isErr := callTool(t, cs, map[string]any{"input": strings.Join([]string{
		"*** Begin Patch",
		"*** Update File: notes.txt",
		"@@",
		"-beta",
		"+BETA",
		"*** Add File: docs/new.md",
		"+# New",
		"*** End Patch",
	}, "\n")})
	require.False(t, isErr, text)
	require.Equal(t, "Applied patch to 2 files.", text)

	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "alpha\nBETA\n", string(data))
	data, err = os.ReadFile(filepath.Join(root, "docs", "new.md"))
	require.NoError(t, err)
	require.Equal(t, "# New\n", string(data))

	require.Len(t, recorder.entries, 1)
	require.Equal(t, "mcp", recorder.entries[0].Source)
	require.Len(t, recorder.entries[0].Files, 2)
}

func TestToolAcceptsPatchAlias(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cs := session(t, Options{Root: root})

	text, isErr := callTool(t, cs, map[string]any{"patch": "*** Begin Patch\n*** Add File: a.txt\n+x\n*** End Patch\n"})
	require.False(t, isErr, text)
	require.Equal(t, "Applied patch to 1 file.", text)
}

func TestToolReportsFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.go"), []byte("package app\n"), 0o644))
	recorder := &memoryRecorder{}
	cs := session(t, Options{Root: root, Journal: recorder})

	text, isErr := callTool(t, cs, map[string]any{})
	require.True(t, isErr)
	require.Contains(t, text, "input must be a non-empty string")

	text, isErr = callTool(t, cs, map[string]any{"input": "no markers here"})
	require.True(t, isErr)
	require.Contains(t, text, "patch must include *** Begin Patch")

	text, isErr = callTool(t, cs, map[string]any{"input": "*** Begin Patch\n*** Update File: app.go\n@@\n-package lib\n+package app2\n*** End Patch"})
	require.True(t, isErr)
	require.Contains(t, text, "Hunk context not found in ./app.go.")
	require.Contains(t, text, "Full content of file: ./app.go::::")

	require.Empty(t, recorder.entries)
	data, err := os.ReadFile(filepath.Join(root, "app.go"))
	require.NoError(t, err)
	require.Equal(t, "package app\n", string(data))
}

func TestApplyRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	tool := New(Options{Root: t.TempDir()})
	input := "*** Begin Patch\n*** Add File: ../evil.txt\n+x\n*** End Patch"
	_, err := tool.Apply(context.Background(), &input, nil)
	require.ErrorContains(t, err, "escapes the project root")
}
