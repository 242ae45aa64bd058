package application

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type Service struct {
	cfg           Config
	orchestrators *Registry
	responders    *Registry
	router        *BusRouter
	replies       ports.ReplyChannels
	workers       *WorkerPool
	metrics       ports.Metrics
	logger        *slog.Logger
	nowFn         func() time.Time
	newChannelID  func() string
}

type Dependencies struct {
	Config        Config
	EventLog      ports.CaseEventLog
	Publisher     ports.BusPublisher
	ReplyChannels ports.ReplyChannels
	Inbox         ports.InboxRepository
	Analyzer      ports.LogAnalyzer
	Probe         ports.DeploymentProbe
	Metrics       ports.Metrics
	Logger        *slog.Logger
}

func NewService(deps Dependencies) (*Service, error) {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M48-Case-Resolver"
	}
	if cfg.Role == "" {
		cfg.Role = RoleStandalone
	}
	if cfg.RequestsTopic == "" {
		cfg.RequestsTopic = "deployment.requests"
	}
	if cfg.ResponsesTopic == "" {
		cfg.ResponsesTopic = "deployment.responses"
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 30 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 5 * time.Second
	}
	if cfg.WorkerTimeout <= 0 {
		cfg.WorkerTimeout = 10 * time.Second
	}
	if cfg.InboxDedupTTL <= 0 {
		cfg.InboxDedupTTL = 24 * time.Hour
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Publisher == nil {
		return nil, errors.New("bus publisher is required")
	}

	s := &Service{
		cfg:          cfg,
		replies:      deps.ReplyChannels,
		metrics:      metrics,
		logger:       logger,
		nowFn:        func() time.Time { return time.Now().UTC() },
		newChannelID: func() string { return "case-response-" + uuid.NewString() },
		router:       NewBusRouter(deps.Inbox, cfg.InboxDedupTTL, metrics, logger),
	}
	dispatcher := NewBusDispatcher(deps.Publisher)

	if cfg.Role.Resolves() {
		if deps.EventLog == nil || deps.ReplyChannels == nil || deps.Analyzer == nil {
			return nil, fmt.Errorf("role %s requires event log, reply channels and analyzer", cfg.Role)
		}
		s.workers = NewWorkerPool(deps.Analyzer, cfg.WorkerTimeout, logger)
		s.orchestrators = NewRegistry("orchestrators", newOrchestratorFactory(orchestratorDeps{
			requestsTopic:   cfg.RequestsTopic,
			dispatchTimeout: cfg.DispatchTimeout,
			cycleTTL:        cfg.ReplyTimeout,
			events:          deps.EventLog,
			dispatcher:      dispatcher,
			replies:         deps.ReplyChannels,
			workers:         s.workers,
			metrics:         metrics,
			logger:          logger,
			nowFn:           s.nowFn,
			newID:           uuid.NewString,
		}), cfg.EntityIdleTimeout, logger)
		s.router.Handle(cfg.ResponsesTopic, OrchestratorRoute(s.orchestrators))
	}
	if cfg.Role.Responds() {
		if deps.Probe == nil {
			return nil, fmt.Errorf("role %s requires a deployment probe", cfg.Role)
		}
		s.responders = NewRegistry("responders", newResponderFactory(responderDeps{
			responsesTopic:  cfg.ResponsesTopic,
			dispatchTimeout: cfg.DispatchTimeout,
			probe:           deps.Probe,
			dispatcher:      dispatcher,
			logger:          logger,
		}), cfg.EntityIdleTimeout, logger)
		s.router.Handle(cfg.RequestsTopic, ResponderRoute(s.responders))
	}
	if s.orchestrators == nil && s.responders == nil {
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

// Topics lists the bus topics this role consumes.
func (s *Service) Topics() []string {
	return s.router.Topics()
}

func (s *Service) Close() {
	if s.orchestrators != nil {
		s.orchestrators.Close()
	}
	if s.responders != nil {
		s.responders.Close()
	}
	if s.workers != nil {
		s.workers.Wait()
	}
}
