package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/intake"
)

var ingestRecompute bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a JSON batch of evidence and timeline events",
	Long: `Reads a batch document with "evidence", "events", and optional
"recompute" arrays and feeds it through the engine. Pass "-" (or no
argument) to read the batch from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRecompute, "recompute", true, "recompute affected users after ingestion")
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <user-id> [user-id...]",
	Short: "Recompute scores, patterns, and contexts for users",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecompute,
}

func runIngest(cmd *cobra.Command, args []string) error {
	raw, err := readBatchInput(args)
	if err != nil {
		return err
	}

	var batch intake.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return fmt.Errorf("parsing batch: %w", err)
	}

	reg, _, logger, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()

	ctx := cmd.Context()
	eng := reg.Engine()

	summary := map[string]any{}
	if len(batch.Evidence) > 0 {
		report, err := eng.IngestEvidence(ctx, batch.Evidence)
		if err != nil {
			return fmt.Errorf("ingesting evidence: %w", err)
		}
		summary["evidence"] = report
	}
	if len(batch.Events) > 0 {
		report, err := eng.IngestEvents(ctx, batch.Events)
		if err != nil {
			return fmt.Errorf("ingesting events: %w", err)
		}
		summary["events"] = report
	}

	if ingestRecompute {
		users := batch.Recompute
		if len(users) == 0 {
			users = batch.AffectedUsers()
		}
		if len(users) > 0 {
			results, err := eng.RecomputeUsers(ctx, users)
			if err != nil {
				logger.Warn("recompute after ingest failed", zap.Error(err))
			}
			summary["recompute"] = results
		}
	}

	return printJSON(summary)
}

func runRecompute(cmd *cobra.Command, args []string) error {
	reg, _, _, err := setup()
	if err != nil {
		return err
	}
	defer reg.Close()

	results, err := reg.Engine().RecomputeUsers(cmd.Context(), args)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func readBatchInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}
	return raw, nil
}
