package cli

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/mcptool"
	"github.com/asynkron/applypatch/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP streamable endpoint",
		Long: `Serve the patch engine over HTTP.

Routes:
  GET  /healthz     liveness probe
  POST /v1/parse    parse a patch into operations
  POST /v1/apply    apply a patch to the project root or to inline files
  GET  /v1/history  recent journal entries
  GET  /v1/events   server-sent events for every apply
       /mcp         MCP streamable HTTP endpoint with the apply_patch tool`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := server.Options{Root: a.cfg.Root, Version: Version, Logger: a.logger}
			j, err := a.openJournal()
			if err != nil {
				return fail(err)
			}
			if j != nil {
				defer j.Close()
				opts.Journal = j
			}

			srv, err := server.New(opts)
			if err != nil {
				return fail(err)
			}
			return fail(srv.ListenAndServe(cmd.Context(), a.cfg.HTTPAddr))
		},
	}
	cmd.Flags().String("addr", "", "listen address (default 127.0.0.1:8080)")
	return cmd
}

func (a *app) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the apply_patch MCP tool over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
apply_patch tool. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := mcptool.Options{Root: a.cfg.Root, Logger: a.logger, Source: "mcp-stdio"}
			j, err := a.openJournal()
			if err != nil {
				return fail(err)
			}
			if j != nil {
				defer j.Close()
				opts.Journal = j
			}

			srv, err := mcptool.NewServer(Version, opts)
			if err != nil {
				return fail(err)
			}
			a.logger.Info(ctx, "mcp server starting", logging.Field("root", a.cfg.Root))
			return fail(srv.Run(ctx, &mcp.StdioTransport{}))
		},
	}
}
