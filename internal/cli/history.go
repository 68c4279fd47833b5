package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asynkron/applypatch/internal/journal"
)

func (a *app) historyCommand() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List patches recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := a.openJournal()
			if err != nil {
				return fail(err)
			}
			if j == nil {
				return fail(errors.New("journal is disabled; set --journal or APPLYPATCH_JOURNAL"))
			}
			defer j.Close()

			entries, err := j.List(cmd.Context(), limit)
			if err != nil {
				return fail(err)
			}
			if asJSON {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return a.writeJSON(entries)
			}
			fmt.Fprint(a.stdout, a.formatHistory(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries; 0 lists all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func (a *app) formatHistory(entries []journal.Entry) string {
	if len(entries) == 0 {
		return "No patches recorded.\n"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s  %s  %d operation(s)\n", e.ID, e.CreatedAt.Local().Format(time.DateTime), e.Source, e.Operations)
		for _, f := range e.Files {
			b.WriteString("    ")
			b.WriteString(a.render.Status(f.Status, f.Path, f.From))
			b.WriteString("\n")
		}
	}
	return b.String()
}
