// Package mcptool exposes the patch engine as the apply_patch tool of a Model
// Context Protocol server.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/schema"
	"github.com/asynkron/applypatch/pkg/patch"
)

// ToolName is the name the tool is registered under.
const ToolName = "apply_patch"

const toolDescription = "Apply a patch to files in the project. The input must start with " +
	"*** Begin Patch and end with *** End Patch, and may contain *** Add File, " +
	"*** Delete File and *** Update File sections (optionally followed by *** Move to). " +
	"Update hunks start with @@ and use space, - and + prefixed lines. " +
	"Paths are relative to the project root."

// Recorder stores successfully applied patches.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) (journal.Entry, error)
}

// Options configures the tool.
type Options struct {
	// Root is the project directory patches are applied to.
	Root    string
	Logger  logging.Logger
	Journal Recorder
	// Source labels journal entries; it defaults to "mcp".
	Source string
}

// Tool applies patches on behalf of MCP clients.
type Tool struct {
	root    string
	logger  logging.Logger
	journal Recorder
	source  string
}

// New returns a Tool for opts.
func New(opts Options) *Tool {
	logger := opts.Logger
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	source := opts.Source
	if source == "" {
		source = "mcp"
	}
	return &Tool{
		root:    opts.Root,
		logger:  logger.WithFields(logging.Field("tool", ToolName)),
		journal: opts.Journal,
		source:  source,
	}
}

// NewServer returns an MCP server with the apply_patch tool registered.
func NewServer(version string, opts Options) (*mcp.Server, error) {
	srv := mcp.NewServer(&mcp.Implementation{Name: "applypatch", Version: version}, nil)
	if err := New(opts).Register(srv); err != nil {
		return nil, err
	}
	return srv, nil
}

type toolArgs struct {
	Input *string `json:"input"`
	Patch *string `json:"patch"`
}

// Register adds the tool to srv.
func (t *Tool) Register(srv *mcp.Server) error {
	inputSchema, err := schema.Document(schema.ToolInput)
	if err != nil {
		return fmt.Errorf("mcptool: load input schema: %w", err)
	}
	srv.AddTool(&mcp.Tool{
		Name:        ToolName,
		Description: toolDescription,
		InputSchema: inputSchema,
	}, t.handle)
	return nil
}

func (t *Tool) handle(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args toolArgs
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
	}

	summary, err := t.Apply(ctx, args.Input, args.Patch)
	if err != nil {
		var res mcp.CallToolResult
		res.SetError(errors.New(describe(err)))
		return &res, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: summary}},
	}, nil
}

// Apply parses and commits a patch below the tool root and returns the
// summary line. input wins over patch when both are set.
func (t *Tool) Apply(ctx context.Context, input, patchText *string) (string, error) {
	ctx = logging.EnsureTraceID(ctx)

	text, err := patch.ExtractPatchText(input, patchText)
	if err == nil && strings.TrimSpace(text) == "" {
		err = &patch.Error{Message: "input must be a non-empty string", Code: patch.CodeParse}
	}
	if err != nil {
		t.logger.Warn(ctx, "rejected tool call", logging.Field("reason", err.Error()))
		return "", err
	}

	operations, err := patch.Parse(text)
	if err != nil {
		t.logger.Warn(ctx, "patch parse failed", logging.Field("reason", err.Error()))
		return "", err
	}
	store, err := patch.NewFilesystemStore(t.root)
	if err != nil {
		return "", err
	}
	cs, err := patch.Stage(ctx, operations, store)
	if err != nil {
		t.logger.Warn(ctx, "patch staging failed", logging.Field("reason", err.Error()))
		return "", err
	}
	results, err := cs.Commit(ctx)
	if err != nil {
		t.logger.Error(ctx, "patch commit failed", err, logging.Field("written", len(results)))
		return "", err
	}

	t.logger.Info(ctx, "patch applied", logging.Field("operations", cs.Operations()), logging.Field("files", len(results)))
	if t.journal != nil {
		entry := journal.NewEntry(t.source, store.Root, text, cs.Operations(), results)
		if _, err := t.journal.Record(ctx, entry); err != nil {
			t.logger.Error(ctx, "failed to record patch", err)
		}
	}
	return patch.Summary(cs.Operations()), nil
}

func describe(err error) string {
	var pe *patch.Error
	if errors.As(err, &pe) {
		return patch.FormatError(pe)
	}
	return err.Error()
}
