package application

import "time"

type Role string

const (
	RoleResolver   Role = "resolver"
	RoleResponder  Role = "responder"
	RoleStandalone Role = "standalone"
)

func (r Role) Resolves() bool {
	return r == RoleResolver || r == RoleStandalone
}

func (r Role) Responds() bool {
	return r == RoleResponder || r == RoleStandalone
}

type Config struct {
	ServiceName       string
	Role              Role
	RequestsTopic     string
	ResponsesTopic    string
	ReplyTimeout      time.Duration
	DispatchTimeout   time.Duration
	WorkerTimeout     time.Duration
	EntityIdleTimeout time.Duration
	InboxDedupTTL     time.Duration
}
