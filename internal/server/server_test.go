package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/mcptool"
)

func newTestServer(t *testing.T, root string, j Journal) *Server {
	t.Helper()
	srv, err := New(Options{Root: root, Version: "test", Journal: j})
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

const addPatch = "*** Begin Patch\n*** Add File: hello.txt\n+hello\n*** End Patch\n"

func TestHealth(t *testing.T) {
	t.Parallel()

	rec, body := do(t, newTestServer(t, t.TempDir(), nil).Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "test", body["version"])
}

func TestParse(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, t.TempDir(), nil).Handler()

	rec, body := do(t, h, http.MethodPost, "/v1/parse", map[string]any{"patch": addPatch})
	require.Equal(t, http.StatusOK, rec.Code)
	ops := body["operations"].([]any)
	require.Len(t, ops, 1)
	op := ops[0].(map[string]any)
	require.Equal(t, "add", op["type"])
	require.Equal(t, "hello.txt", op["path"])
	require.Equal(t, "hello\n", op["content"])

	rec, body = do(t, h, http.MethodPost, "/v1/parse", map[string]any{"patch": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "PARSE_ERROR", body["code"])
	require.Equal(t, "patch must include *** Begin Patch", body["error"])

	rec, body = do(t, h, http.MethodPost, "/v1/parse", map[string]any{"input": addPatch})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, body["issues"])

	rec, _ = do(t, h, http.MethodPost, "/v1/parse", "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyInMemory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	h := newTestServer(t, root, nil).Handler()
	rec, body := do(t, h, http.MethodPost, "/v1/apply", map[string]any{
		"patch": "*** Begin Patch\n*** Update File: a.txt\n@@\n-one\n+two\n*** End Patch",
		"files": map[string]string{"a.txt": "one\n"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Applied patch to 1 file.", body["summary"])
	require.Equal(t, map[string]any{"a.txt": "two\n"}, body["files"])

	_, err := os.Stat(filepath.Join(root, "a.txt"))
	require.True(t, os.IsNotExist(err))
}

func TestApplyFilesystemRecordsJournal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	h := newTestServer(t, root, j).Handler()

	rec, body := do(t, h, http.MethodPost, "/v1/apply", map[string]any{"patch": addPatch, "dry_run": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["dry_run"])
	changes := body["changes"].([]any)
	require.Len(t, changes, 1)
	require.Contains(t, changes[0].(map[string]any)["diff"], "+hello")
	_, err = os.Stat(filepath.Join(root, "hello.txt"))
	require.True(t, os.IsNotExist(err))

	rec, body = do(t, h, http.MethodPost, "/v1/apply", map[string]any{"patch": addPatch})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := body["results"].([]any)
	require.Len(t, results, 1)
	require.Equal(t, "A", results[0].(map[string]any)["status"])
	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))

	rec, body = do(t, h, http.MethodGet, "/v1/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	require.Equal(t, "http", entries[0].(map[string]any)["source"])

	rec, _ = do(t, h, http.MethodGet, "/v1/history?limit=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyReportsHunkFailure(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, t.TempDir(), nil).Handler()
	rec, body := do(t, h, http.MethodPost, "/v1/apply", map[string]any{
		"patch": "*** Begin Patch\n*** Update File: a.txt\n@@\n-missing\n+x\n*** End Patch",
		"files": map[string]string{"a.txt": "one\n"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "HUNK_NOT_FOUND", body["code"])
	require.Contains(t, body["report"], "Hunk context not found in ./a.txt.")

	rec, body = do(t, h, http.MethodPost, "/v1/apply", map[string]any{"patch": addPatch, "files": map[string]string{"hello.txt": "x"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "FILE_EXISTS", body["code"])
}

func TestHistoryWithoutJournal(t *testing.T) {
	t.Parallel()

	rec, _ := do(t, newTestServer(t, t.TempDir(), nil).Handler(), http.MethodGet, "/v1/history", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsStream(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, t.TempDir(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return srv.events.subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	body, err := json.Marshal(map[string]any{"patch": addPatch, "files": map[string]string{}})
	require.NoError(t, err)
	applyResp, err := http.Post(ts.URL+"/v1/apply", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	applyResp.Body.Close()
	require.Equal(t, http.StatusOK, applyResp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	var sawEvent bool
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if line == "event: applied" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var evt Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
			require.Equal(t, "Applied patch to 1 file.", evt.Summary)
			require.NotEmpty(t, evt.TraceID)
			return
		}
	}
}

func TestMCPOverHTTP(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ts := httptest.NewServer(newTestServer(t, root, nil).Handler())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "http-test", Version: "0.1.0"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	result, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: mcptool.ToolName, Arguments: map[string]any{"input": addPatch}})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Equal(t, "Applied patch to 1 file.", result.Content[0].(*mcp.TextContent).Text)

	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}
