package cli

import (
	"github.com/spf13/cobra"

	"github.com/asynkron/applypatch/pkg/patch"
)

func (a *app) parseCommand() *cobra.Command {
	var clipboard bool
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a patch and print its operations as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := a.readPatch(args, clipboard)
			if err != nil {
				return fail(err)
			}
			operations, err := patch.Parse(payload.Text)
			if err != nil {
				return fail(err)
			}
			return a.writeJSON(map[string]any{"operations": patch.Views(operations)})
		},
	}
	cmd.Flags().BoolVar(&clipboard, "clipboard", false, "read the patch from the clipboard")
	return cmd
}
