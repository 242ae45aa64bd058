package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

const analysisErrorPrefix = "Error processing log analysis: "

// Worker performs the local analysis for one cycle and reports exactly one
// LocalResult.
type Worker struct {
	id       string
	analyzer ports.LogAnalyzer
	logger   *slog.Logger
}

func NewWorker(analyzer ports.LogAnalyzer, logger *slog.Logger) *Worker {
	return &Worker{id: "log-analysis-" + uuid.NewString(), analyzer: analyzer, logger: logger}
}

func (w *Worker) Run(ctx context.Context, caseID string, reply func(LocalResult)) {
	data := w.analyze(ctx, caseID)
	reply(LocalResult{CaseID: caseID, Data: data, SourceID: w.id})
}

func (w *Worker) analyze(ctx context.Context, caseID string) (data string) {
	defer func() {
		if rec := recover(); rec != nil {
			data = analysisErrorPrefix + fmt.Sprint(rec)
		}
	}()
	out, err := w.analyzer.Analyze(ctx, caseID)
	if err != nil {
		w.logger.WarnContext(ctx, "log analysis failed",
			"module", "application.worker",
			"layer", "application",
			"operation", "analyze",
			"outcome", "failure",
			"case_id", caseID,
			"worker_id", w.id,
			"error", err,
		)
		return analysisErrorPrefix + err.Error()
	}
	return out
}

// WorkerPool runs workers in their own goroutines, bounded by a per-worker
// timeout.
type WorkerPool struct {
	analyzer ports.LogAnalyzer
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func NewWorkerPool(analyzer ports.LogAnalyzer, timeout time.Duration, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{analyzer: analyzer, timeout: timeout, logger: logger}
}

func (p *WorkerPool) Spawn(ctx context.Context, caseID string, reply func(LocalResult)) {
	worker := NewWorker(p.analyzer, p.logger)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		runCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		worker.Run(runCtx, caseID, reply)
	}()
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
