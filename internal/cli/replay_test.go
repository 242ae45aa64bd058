package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/adapters/postgres"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
)

// seedEventLog writes seqs per case into a fresh SQLite event log.
func seedEventLog(t *testing.T, cases map[string][]int64) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cases.db")
	db, err := postgres.Connect(ctx, "sqlite://"+path, 1)
	require.NoError(t, err)
	defer postgres.Close(db)
	require.NoError(t, postgres.RunMigrations(ctx, db))

	events := postgres.NewRepositories(db).Events
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for caseID, seqs := range cases {
		for _, seq := range seqs {
			event := domain.NewCycleCompleted(fmt.Sprintf("%s-%d", caseID, seq), caseID, seq, at)
			require.NoError(t, events.Append(ctx, event))
		}
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestReplayMissingDatabaseFlag(t *testing.T) {
	_, err := runCommand(t, "replay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestReplayEmptyLog(t *testing.T) {
	path := seedEventLog(t, nil)

	out, err := runCommand(t, "replay", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No cases found")
}

func TestReplayTextGolden(t *testing.T) {
	path := seedEventLog(t, map[string][]int64{
		"case-a": {1, 2},
		"case-b": {1},
	})

	out, err := runCommand(t, "replay", "--db", path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "replay_text", []byte(out))
}

func TestReplaySingleCaseJSON(t *testing.T) {
	path := seedEventLog(t, map[string][]int64{
		"case-a": {1, 2, 3},
		"case-b": {1},
	})

	out, err := runCommand(t, "replay", "--db", "sqlite://"+path, "--case", " case-a ", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Cases, 1)
	assert.Equal(t, ReplayCaseResult{
		CaseID:        "case-a",
		ResolvedCount: 3,
		Events:        3,
		LastSeq:       3,
		Consistent:    true,
	}, resp.Data.Cases[0])
}

func TestReplayUnknownCaseFoldsToEmpty(t *testing.T) {
	path := seedEventLog(t, map[string][]int64{"case-a": {1}})

	out, err := runCommand(t, "replay", "--db", path, "--case", "case-z")
	require.NoError(t, err)
	assert.Contains(t, out, "case case-z: resolvedCount=0 events=0")
}

func TestReplaySequenceGapExitsWithFailure(t *testing.T) {
	path := seedEventLog(t, map[string][]int64{"case-a": {1, 3}})

	out, err := runCommand(t, "replay", "--db", path, "--verbose")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "sequence gap detected")
	assert.Contains(t, out, "last seq: 3")
}

func TestReplayBlankCaseIsCommandError(t *testing.T) {
	path := seedEventLog(t, nil)

	_, err := runCommand(t, "replay", "--db", path, "--case", "   ")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplayCaseIsNormalizedBeforeValidation(t *testing.T) {
	path := seedEventLog(t, nil)
	longest := strings.Repeat("c", 255)

	out, err := runCommand(t, "replay", "--db", path, "--case", "  "+longest+"\t")
	require.NoError(t, err)
	assert.Contains(t, out, "case "+longest+": resolvedCount=0")

	_, err = runCommand(t, "replay", "--db", path, "--case", "case-\xff")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDatabaseURL(t *testing.T) {
	assert.Equal(t, "sqlite://./x.db", databaseURL("./x.db"))
	assert.Equal(t, "postgres://u@h/db", databaseURL("postgres://u@h/db"))
}
