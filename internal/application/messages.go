package application

import "github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"

// Message is anything that can be delivered to a case entity mailbox.
type Message interface {
	messageName() string
}

// ResolveCase starts a resolution cycle. ReplyChannelID names the ephemeral
// channel the caller is already subscribed to.
type ResolveCase struct {
	CaseID         string
	ReplyChannelID string
}

// LocalResult is the single answer produced by a worker spawned for a cycle.
type LocalResult struct {
	CaseID   string
	Data     string
	SourceID string
}

// RemoteReply carries the remote domain's answer, routed back by case key.
type RemoteReply struct {
	CaseID        string
	CorrelationID string
	Status        domain.DeploymentStatusResponse
}

// QueryState asks an entity for a snapshot. Reply must be buffered.
type QueryState struct {
	Reply chan domain.CaseSnapshot
}

// CheckDeployment is delivered to the responder entity for a case.
type CheckDeployment struct {
	CaseID        string
	CorrelationID string
	Request       domain.DeploymentStatusRequest
}

func (ResolveCase) messageName() string     { return "resolve_case" }
func (LocalResult) messageName() string     { return "local_result" }
func (RemoteReply) messageName() string     { return "remote_reply" }
func (QueryState) messageName() string      { return "query_state" }
func (CheckDeployment) messageName() string { return "check_deployment" }
