package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ComposeSummary joins the local analysis results with the remote deployment
// status and the resolution count that includes the cycle being completed.
func ComposeSummary(localResults []string, status DeploymentStatusResponse, resolvedCount int64) string {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		statusJSON = []byte(fmt.Sprintf("%+v", status))
	}
	return fmt.Sprintf("LogAnalysisResults: [%s], DeploymentStatus: %s, TotalResolutions: %d",
		strings.Join(localResults, ", "), statusJSON, resolvedCount)
}
