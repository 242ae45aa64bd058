package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

type ResolveOptions struct {
	*RootOptions
	Gateway string
	CaseID  string
	Timeout time.Duration
}

type gatewayEnvelope struct {
	Status  string              `json:"status"`
	Data    domain.CaseResolved `json:"data"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
}

// NewResolveCommand drives one resolution through the gateway HTTP API.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a case through the gateway",
		Long: `Ask the gateway to run one correlation cycle for a case and print the summary.

Exit codes:
  0 - the case resolved
  1 - the gateway rejected the request or the cycle timed out
  2 - command error (gateway unreachable, bad flags)

Examples:
  casectl resolve --case case-17
  casectl resolve --gateway http://resolver:8080 --case case-17 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), opts, cmd.OutOrStdout(), http.DefaultClient)
		},
	}

	cmd.Flags().StringVar(&opts.Gateway, "gateway", "http://localhost:8080", "gateway base URL")
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "case identifier (required)")
	_ = cmd.MarkFlagRequired("case")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 35*time.Second, "overall request timeout")

	return cmd
}

func runResolve(ctx context.Context, opts *ResolveOptions, w io.Writer, client *http.Client) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := domain.ValidateCaseKey(opts.CaseID); err != nil {
		return WrapExitError(ExitCommandError, "invalid --case", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(map[string]string{"caseId": domain.NormalizeCaseKey(opts.CaseID)})
	if err != nil {
		return WrapExitError(ExitCommandError, "encode request", err)
	}
	url := strings.TrimRight(opts.Gateway, "/") + "/api/v1/cases/resolve"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return WrapExitError(ExitCommandError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return WrapExitError(ExitCommandError, "gateway unreachable", err)
	}
	defer resp.Body.Close()

	var env gatewayEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("unreadable gateway response (HTTP %d)", resp.StatusCode), err)
	}

	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		if opts.Format == "json" {
			_ = writeJSON(w, CLIResponse{Status: "error", Error: &CLIError{Code: env.Code, Message: env.Message}})
		} else {
			fmt.Fprintf(w, "Error [%s]: %s\n", env.Code, env.Message)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("gateway rejected case: HTTP %d %s", resp.StatusCode, env.Code))
	}

	timedOut := env.Data.TimedOut()
	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: env.Data}
		if timedOut {
			response.Status = "error"
			response.Error = &CLIError{Code: "E_TIMEOUT", Message: env.Data.Summary}
		}
		if err := writeJSON(w, response); err != nil {
			return err
		}
	} else if timedOut {
		fmt.Fprintf(w, "Timed out: %s\n", env.Data.Summary)
	} else {
		fmt.Fprintf(w, "case %s resolved (resolvedCount=%d)\n", env.Data.CaseID, env.Data.ResolvedCount)
		fmt.Fprintln(w, env.Data.Summary)
	}
	if timedOut {
		return NewExitError(ExitFailure, "resolution timed out")
	}
	return nil
}
