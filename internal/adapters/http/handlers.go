package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxRequestBodyBytes = 1 << 16

type resolveCaseRequest struct {
	CaseID string `json:"caseId"`
}

func (h *Handler) resolveCase(w http.ResponseWriter, r *http.Request) {
	var req resolveCaseRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "request body must be a JSON object with caseId"
		logHTTPOperationError(r.Context(), "resolve_case", http.StatusBadRequest, "VALIDATION_ERROR", msg, err)
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}
	// Timeouts come back as a regular result carrying the timeout summary.
	resp, err := h.service.ResolveCase(r.Context(), req.CaseID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		logHTTPOperationError(r.Context(), "resolve_case", status, code, msg, err)
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseId")
	snap, err := h.service.GetCaseState(r.Context(), caseID)
	if err != nil {
		status, code, msg := mapDomainError(err)
		logHTTPOperationError(r.Context(), "get_case", status, code, msg, fmt.Errorf("case %q: %w", caseID, err))
		writeError(w, status, code, msg)
		return
	}
	writeSuccess(w, http.StatusOK, snap)
}
