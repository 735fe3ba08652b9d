// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reference-refine/internal/checkpoint"
	"github.com/pdiddy/reference-refine/internal/config"
	"github.com/pdiddy/reference-refine/internal/orchestrator"
	"github.com/pdiddy/reference-refine/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine every reference in checkpointed batches",
	Long: `Run checks credentials, creates a timestamped session directory under
batch.output_dir, snapshots the working file, and then runs three phases:

  sample   run a small sample through the full pipeline
  decide   go, reduce the batch size and resample once, or stop
  run      process the remaining references in batches, checkpointing after each

Every batch is committed to the working file before the checkpoint advances,
so an interrupted session resumes with --resume <session-dir>. A batch that
still fails too often after one retry halts the session; earlier batches stay
committed.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("resume", "", "resume the session in this directory")
	runCmd.Flags().Int("sample-size", 0, "override batch.sample_size")
	runCmd.Flags().Int("batch-size", 0, "override batch.size")
	runCmd.Flags().Bool("auto-finalize", false, "finalize references that end with a primary URL")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if n, _ := cmd.Flags().GetInt("sample-size"); n > 0 {
		cfg.Batch.SampleSize = n
	}
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		cfg.Batch.Size = n
	}
	if cmd.Flags().Changed("auto-finalize") {
		cfg.Batch.AutoFinalize, _ = cmd.Flags().GetBool("auto-finalize")
	}

	if err := config.CheckCredentials(cfg); err != nil {
		return err
	}

	ws, err := openWritable(cfg)
	if err != nil {
		return err
	}
	defer ws.Close()

	pipeline, closeModel, err := newPipeline(ctx, cfg, ws.Audit)
	if err != nil {
		return err
	}
	defer closeModel()

	resume, _ := cmd.Flags().GetString("resume")
	dir, cp, err := openSession(resume, cfg.Batch)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s in %s\n", cp.SessionID, dir)

	snap := filepath.Join(dir, "snapshot-"+filepath.Base(cfg.Files.Working))
	if _, statErr := os.Stat(snap); errors.Is(statErr, os.ErrNotExist) {
		if _, err := ws.Store.Snapshot(dir); err != nil {
			return err
		}
	}

	orch := &orchestrator.Orchestrator{
		Store:       ws.Store,
		Set:         ws.Set,
		Checkpoints: checkpoint.New(dir),
		Processor:   pipeline,
		Audit:       ws.Audit,
		Cfg:         cfg.Batch,
		Out:         out,
	}
	rep, err := orch.Run(ctx, cp)
	rep.Print(out)
	fmt.Fprintf(out, "Report: %s\n", filepath.Join(dir, orchestrator.ReportFile))

	if errors.Is(err, orchestrator.ErrBatchFailureThresholdExceeded) {
		fmt.Fprintf(out, "Resume with: refine run --resume %s\n", dir)
		return nil
	}
	return err
}

// openSession loads the checkpoint in resume, or creates a new session
// directory under the configured output directory.
func openSession(resume string, bc types.BatchConfig) (string, *types.Checkpoint, error) {
	if resume != "" {
		cp, err := checkpoint.New(resume).Load()
		if err != nil {
			return "", nil, fmt.Errorf("resuming %s: %w", resume, err)
		}
		return resume, cp, nil
	}
	cp := orchestrator.NewCheckpoint(time.Now(), bc)
	dir := filepath.Join(bc.OutputDir, cp.SessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating session directory: %w", err)
	}
	if err := checkpoint.New(dir).Save(cp); err != nil {
		return "", nil, err
	}
	return dir, cp, nil
}
