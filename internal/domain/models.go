package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type CyclePhase string

const (
	PhaseIdle           CyclePhase = "idle"
	PhaseAwaitingLocal  CyclePhase = "awaiting_local"
	PhaseAwaitingRemote CyclePhase = "awaiting_remote"
)

const EventTypeCycleCompleted = "case.cycle_completed"

// CaseState is the durable part of a case. It is only ever derived by
// folding the case's event stream.
type CaseState struct {
	CaseID        string
	ResolvedCount int64
}

func EmptyCaseState(caseID string) CaseState {
	return CaseState{CaseID: caseID}
}

func (s CaseState) Apply(event CaseEvent) CaseState {
	if event.Type == EventTypeCycleCompleted {
		s.ResolvedCount++
	}
	return s
}

// Fold rebuilds a case state from empty. Events are applied in slice order.
func Fold(caseID string, events []CaseEvent) CaseState {
	state := EmptyCaseState(caseID)
	for _, event := range events {
		state = state.Apply(event)
	}
	return state
}

type CaseEvent struct {
	EventID    string
	CaseID     string
	Seq        int64
	Type       string
	OccurredAt time.Time
}

func NewCycleCompleted(eventID, caseID string, seq int64, at time.Time) CaseEvent {
	return CaseEvent{
		EventID:    eventID,
		CaseID:     caseID,
		Seq:        seq,
		Type:       EventTypeCycleCompleted,
		OccurredAt: at,
	}
}

// CaseSnapshot is a read-only view of a live case entity.
type CaseSnapshot struct {
	CaseID        string     `json:"caseId"`
	ResolvedCount int64      `json:"resolvedCount"`
	Phase         CyclePhase `json:"phase"`
}

// CorrelationEnvelope is one bus message. The wire value is the bare
// deployment status object: its requestId is the correlation id and its
// caseId is the only field used to find the destination entity.
type CorrelationEnvelope struct {
	CorrelationID string
	Key           string
	Payload       json.RawMessage
}

type envelopeHeader struct {
	RequestID string `json:"requestId"`
	CaseID    string `json:"caseId"`
}

// NewEnvelope encodes payload and lifts its requestId and caseId into the
// envelope.
func NewEnvelope(payload any) (CorrelationEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CorrelationEnvelope{}, err
	}
	return DecodeEnvelope(raw)
}

// DecodeEnvelope reads the correlation fields of a raw bus value. The whole
// value is kept as the payload.
func DecodeEnvelope(raw []byte) (CorrelationEnvelope, error) {
	var h envelopeHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return CorrelationEnvelope{}, fmt.Errorf("%w: decode: %v", ErrInvalidEnvelope, err)
	}
	return CorrelationEnvelope{
		CorrelationID: h.RequestID,
		Key:           h.CaseID,
		Payload:       json.RawMessage(raw),
	}, nil
}

type DeploymentStatusRequest struct {
	RequestID string `json:"requestId"`
	CaseID    string `json:"caseId"`
}

type DeploymentStatusResponse struct {
	RequestID       string   `json:"requestId"`
	CaseID          string   `json:"caseId"`
	HealthyServices []string `json:"healthyServices"`
	FailedServices  []string `json:"failedServices"`
}

type DeploymentStatus struct {
	HealthyServices []string
	FailedServices  []string
}

// CaseResolved is what the external caller receives.
type CaseResolved struct {
	CaseID        string `json:"caseId"`
	Summary       string `json:"summary"`
	ResolvedCount int64  `json:"resolvedCount"`
}

const (
	TimeoutCaseID  = "timeout"
	TimeoutSummary = "Request timed out"
)

func TimeoutResult() CaseResolved {
	return CaseResolved{CaseID: TimeoutCaseID, Summary: TimeoutSummary}
}

func (r CaseResolved) TimedOut() bool {
	return r.CaseID == TimeoutCaseID && r.Summary == TimeoutSummary
}
