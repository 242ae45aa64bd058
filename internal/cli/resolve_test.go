package cli

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatewayStub(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/cases/resolve", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var req map[string]string
		assert.NoError(t, json.Unmarshal(raw, &req))
		assert.Equal(t, "case-9", req["caseId"])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolvePrintsSummary(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK,
		`{"status":"success","data":{"caseId":"case-9","summary":"LogAnalysisResults: [x], DeploymentStatus: {}, TotalResolutions: 4","resolvedCount":4}}`)

	out, err := runCommand(t, "resolve", "--gateway", srv.URL+"/", "--case", "case-9")
	require.NoError(t, err)
	assert.Contains(t, out, "case case-9 resolved (resolvedCount=4)")
	assert.Contains(t, out, "TotalResolutions: 4")
}

func TestResolveTimeoutIsFailure(t *testing.T) {
	srv := gatewayStub(t, http.StatusOK,
		`{"status":"success","data":{"caseId":"timeout","summary":"Request timed out","resolvedCount":0}}`)

	out, err := runCommand(t, "resolve", "--gateway", srv.URL, "--case", "case-9", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TIMEOUT", resp.Error.Code)
}

func TestResolveGatewayError(t *testing.T) {
	srv := gatewayStub(t, http.StatusConflict,
		`{"status":"error","code":"CASE_BUSY","message":"case already has a resolution in flight"}`)

	out, err := runCommand(t, "resolve", "--gateway", srv.URL, "--case", "case-9")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [CASE_BUSY]")
}

func TestResolveUnreachableGateway(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := runCommand(t, "resolve", "--gateway", url, "--case", "case-9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
