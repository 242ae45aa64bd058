package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

type ReplayOptions struct {
	*RootOptions
	Database string
	CaseID   string // optional, single case only
}

type ReplayCaseResult struct {
	CaseID        string `json:"caseId"`
	ResolvedCount int64  `json:"resolvedCount"`
	Events        int    `json:"events"`
	LastSeq       int64  `json:"lastSeq"`
	// Consistent is false when the stored sequence numbers skip or repeat.
	Consistent bool `json:"consistent"`
}

type ReplayResult struct {
	Cases      []ReplayCaseResult `json:"cases"`
	TotalCases int                `json:"totalCases"`
}

// NewReplayCommand folds case event logs offline, the same way a case entity
// recovers on activation.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild case state from the event log",
		Long: `Replay the case event log and print the state each case would recover to.

--db accepts a postgres:// URL, a sqlite:// URL, or a bare SQLite file path.

Exit codes:
  0 - every replayed case has a gap-free sequence
  1 - at least one case has a skipped or repeated sequence number
  2 - command error (database unreachable, etc.)

Examples:
  casectl replay --db ./m48-case-resolver.db
  casectl replay --db postgres://m48@localhost/m48 --case case-17 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "database URL or SQLite path (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "replay a single case only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := postgres.Connect(ctx, databaseURL(opts.Database), 2)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer postgres.Close(db)
	if err := postgres.RunMigrations(ctx, db); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare database", err)
	}
	events := postgres.NewRepositories(db).Events

	var caseIDs []string
	if opts.CaseID != "" {
		caseID := domain.NormalizeCaseKey(opts.CaseID)
		if err := domain.ValidateCaseKey(caseID); err != nil {
			return WrapExitError(ExitCommandError, "invalid --case", err)
		}
		caseIDs = []string{caseID}
	} else {
		caseIDs, err = events.CaseIDs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list cases", err)
		}
	}

	result := ReplayResult{Cases: make([]ReplayCaseResult, 0, len(caseIDs)), TotalCases: len(caseIDs)}
	for _, caseID := range caseIDs {
		stream, err := events.Replay(ctx, caseID)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay case %s", caseID), err)
		}
		result.Cases = append(result.Cases, summarizeCase(caseID, stream))
	}

	if opts.Format == "json" {
		return outputReplayJSON(w, result)
	}
	return outputReplayText(w, result, opts.Verbose)
}

func summarizeCase(caseID string, stream []domain.CaseEvent) ReplayCaseResult {
	state := domain.Fold(caseID, stream)
	out := ReplayCaseResult{
		CaseID:        caseID,
		ResolvedCount: state.ResolvedCount,
		Events:        len(stream),
		Consistent:    true,
	}
	for i, event := range stream {
		if event.Seq != int64(i+1) {
			out.Consistent = false
		}
		out.LastSeq = event.Seq
	}
	return out
}

func allConsistent(result ReplayResult) bool {
	for _, c := range result.Cases {
		if !c.Consistent {
			return false
		}
	}
	return true
}

func databaseURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "sqlite://" + raw
}

func outputReplayJSON(w io.Writer, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	ok := allConsistent(result)
	if !ok {
		response.Status = "error"
		response.Error = &CLIError{Code: "E_SEQUENCE", Message: "event sequence gap detected"}
	}
	if err := writeJSON(w, response); err != nil {
		return err
	}
	if !ok {
		return NewExitError(ExitFailure, "event sequence gap detected")
	}
	return nil
}

func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	if result.TotalCases == 0 {
		fmt.Fprintln(w, "No cases found in event log.")
		return nil
	}
	for _, c := range result.Cases {
		fmt.Fprintf(w, "case %s: resolvedCount=%d events=%d\n", c.CaseID, c.ResolvedCount, c.Events)
		if verbose {
			fmt.Fprintf(w, "  last seq: %d\n", c.LastSeq)
		}
		if !c.Consistent {
			fmt.Fprintln(w, "  warning: sequence gap detected")
		}
	}
	fmt.Fprintf(w, "Replayed %d case(s).\n", result.TotalCases)
	if !allConsistent(result) {
		return NewExitError(ExitFailure, "event sequence gap detected")
	}
	return nil
}
