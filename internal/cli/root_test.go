package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootRejectsUnknownFormat(t *testing.T) {
	_, err := runCommand(t, "replay", "--db", "x.db", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestExecuteReturnsExitCodes(t *testing.T) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	assert.Equal(t, ExitSuccess, Execute([]string{"--help"}, stdout, stderr))
	assert.Contains(t, stdout.String(), "replay")

	stderr.Reset()
	assert.Equal(t, ExitCommandError, Execute([]string{"resolve"}, stdout, stderr))
	assert.Contains(t, stderr.String(), "required flag")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	wrapped := WrapExitError(ExitCommandError, "open", errors.New("boom"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "open: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, wrapped.Err)
}
