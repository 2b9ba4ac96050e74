package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dismissCmd = &cobra.Command{
	Use:   "dismiss <pattern|context> <id>",
	Short: "Dismiss a pattern or life context",
	Long: `Marks a pattern or life context as dismissed. Dismissed records are
excluded from queries and event publication, and stay dismissed across
future recomputations.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := setup()
		if err != nil {
			return err
		}
		defer reg.Close()

		eng := reg.Engine()
		switch args[0] {
		case "pattern":
			if err := eng.DismissPattern(cmd.Context(), args[1]); err != nil {
				return err
			}
		case "context":
			if err := eng.DismissContext(cmd.Context(), args[1]); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown dismiss target %q (want pattern or context)", args[0])
		}
		fmt.Printf("dismissed %s %s\n", args[0], args[1])
		return nil
	},
}
