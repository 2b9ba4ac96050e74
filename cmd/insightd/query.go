package main

import (
	"github.com/spf13/cobra"
)

var (
	similarLimit  int
	upcomingDays  int
	queryUpcoming bool
	minConfidence float64
)

var scoresCmd = &cobra.Command{
	Use:   "scores <user-id>",
	Short: "Show trait scores for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := setup()
		if err != nil {
			return err
		}
		defer reg.Close()

		scores, err := reg.Engine().TraitScores(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(scores)
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns <user-id>",
	Short: "Show active behavioral patterns for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := setup()
		if err != nil {
			return err
		}
		defer reg.Close()

		pats, err := reg.Engine().ActivePatterns(cmd.Context(), args[0], minConfidence)
		if err != nil {
			return err
		}
		return printJSON(pats)
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <pattern-id>",
	Short: "Find patterns similar to a reference pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := setup()
		if err != nil {
			return err
		}
		defer reg.Close()

		matches, err := reg.Engine().SimilarPatterns(cmd.Context(), args[0], similarLimit)
		if err != nil {
			return err
		}
		return printJSON(matches)
	},
}

var contextsCmd = &cobra.Command{
	Use:   "contexts <user-id>",
	Short: "Show active (or upcoming) life contexts for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, _, err := setup()
		if err != nil {
			return err
		}
		defer reg.Close()

		eng := reg.Engine()
		if queryUpcoming {
			ctxs, err := eng.UpcomingContexts(cmd.Context(), args[0], upcomingDays)
			if err != nil {
				return err
			}
			return printJSON(ctxs)
		}
		ctxs, err := eng.ActiveContexts(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(ctxs)
	},
}

func init() {
	similarCmd.Flags().IntVar(&similarLimit, "limit", 10, "maximum number of matches")
	patternsCmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "hide patterns below this confidence")
	contextsCmd.Flags().BoolVar(&queryUpcoming, "upcoming", false, "show upcoming contexts instead of active ones")
	contextsCmd.Flags().IntVar(&upcomingDays, "days", 14, "look-ahead window in days for --upcoming")
}
