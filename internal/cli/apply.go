package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/source"
	"github.com/asynkron/applypatch/internal/tui"
	"github.com/asynkron/applypatch/pkg/patch"
)

type applyFlags struct {
	dryRun    bool
	review    bool
	json      bool
	clipboard bool
}

type changeJSON struct {
	Status   string `json:"status"`
	Path     string `json:"path"`
	MoveFrom string `json:"move_from,omitempty"`
	Diff     string `json:"diff"`
}

type applyJSON struct {
	Summary string         `json:"summary"`
	DryRun  bool           `json:"dry_run,omitempty"`
	Results []patch.Result `json:"results,omitempty"`
	Changes []changeJSON   `json:"changes,omitempty"`
}

func (a *app) applyCommand() *cobra.Command {
	var flags applyFlags
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply a patch to the project root",
		Long: `Apply a patch to the project root.

The patch is read from the given file, from stdin when the file is "-" or
input is piped, or from the clipboard with --clipboard. Nothing is written
unless every operation in the patch succeeds.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runApply(cmd, args, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "show the diff without writing files")
	cmd.Flags().BoolVar(&flags.review, "review", false, "review each change interactively before writing")
	cmd.Flags().BoolVar(&flags.json, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&flags.clipboard, "clipboard", false, "read the patch from the clipboard")
	return cmd
}

func (a *app) readPatch(args []string, clipboard bool) (source.Payload, error) {
	opts := source.Options{Clipboard: clipboard, Stdin: a.stdin}
	if len(args) > 0 {
		opts.Path = args[0]
	}
	return source.Read(opts)
}

func (a *app) runApply(cmd *cobra.Command, args []string, flags applyFlags) error {
	ctx := logging.EnsureTraceID(cmd.Context())
	if flags.review && flags.json {
		return errors.New("--review and --json cannot be combined")
	}

	payload, err := a.readPatch(args, flags.clipboard)
	if err != nil {
		return fail(err)
	}
	operations, err := patch.Parse(payload.Text)
	if err != nil {
		return fail(err)
	}
	store, err := patch.NewFilesystemStore(a.cfg.Root)
	if err != nil {
		return fail(err)
	}
	cs, err := patch.Stage(ctx, operations, store)
	if err != nil {
		return fail(err)
	}
	a.logger.Debug(ctx, "patch staged",
		logging.Field("source", payload.Origin),
		logging.Field("operations", cs.Operations()))

	if flags.dryRun {
		return a.printDryRun(cs, flags.json)
	}

	var results []patch.Result
	if flags.review {
		outcome, err := tui.Review(ctx, cs.Changes(), a.render, cs.Commit, tui.Options{
			Input:     a.stdin,
			Output:    a.stdout,
			AltScreen: true,
		})
		if err != nil {
			return fail(err)
		}
		if outcome.Err != nil {
			return fail(outcome.Err)
		}
		if !outcome.Applied {
			fmt.Fprintln(a.stdout, "Patch discarded; no files were written.")
			return nil
		}
		results = outcome.Results
	} else {
		results, err = cs.Commit(ctx)
		if err != nil {
			return fail(err)
		}
	}

	a.logger.Info(ctx, "patch applied", logging.Field("files", len(results)))
	a.record(cmd, payload, store.Root, cs.Operations(), results)

	if flags.json {
		return a.writeJSON(applyJSON{Summary: patch.Summary(cs.Operations()), Results: results})
	}
	fmt.Fprint(a.stdout, a.render.Results(results, cs.Operations()))
	return nil
}

func (a *app) printDryRun(cs *patch.Changeset, asJSON bool) error {
	if asJSON {
		out := applyJSON{Summary: patch.Summary(cs.Operations()), DryRun: true, Changes: []changeJSON{}}
		for _, change := range cs.Changes() {
			if change.Status == patch.StatusUnchanged {
				continue
			}
			out.Changes = append(out.Changes, changeJSON{
				Status:   string(change.Status),
				Path:     change.Path,
				MoveFrom: change.MoveFrom,
				Diff:     change.Diff(),
			})
		}
		return a.writeJSON(out)
	}
	fmt.Fprint(a.stdout, a.render.Changes(cs.Changes()))
	fmt.Fprintln(a.stdout, "Dry run: no files were written.")
	return nil
}

// record stores the applied patch in the journal. Journal failures are
// logged and do not fail the command; the files are already written.
func (a *app) record(cmd *cobra.Command, payload source.Payload, root string, operations int, results []patch.Result) {
	ctx := cmd.Context()
	j, err := a.openJournal()
	if err != nil {
		a.logger.Error(ctx, "failed to open journal", err)
		return
	}
	if j == nil {
		return
	}
	defer j.Close()
	entry := journal.NewEntry("cli:"+string(payload.Origin), root, payload.Text, operations, results)
	if _, err := j.Record(ctx, entry); err != nil {
		a.logger.Error(ctx, "failed to record patch", err)
	}
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return nil
}
