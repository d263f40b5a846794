// Package stages runs the STT, LLM and TTS steps of a pipeline with a
// per-stage deadline, timing and failure attribution.
package stages

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain"
	"github.com/satriahrh/kuber/server/domain/entities"
	"github.com/satriahrh/kuber/server/internal/metrics"
)

// State represents the state of a stage execution
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Execution records one stage run within a trace
type Execution struct {
	Stage       domain.Stage  `json:"stage"`
	State       State         `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Error       string        `json:"error,omitempty"`
}

// Trace collects the stage executions of a single pipeline run
type Trace struct {
	mu         sync.Mutex
	started    time.Time
	executions []Execution
}

// NewTrace starts a trace clock
func NewTrace() *Trace {
	return &Trace{started: time.Now()}
}

func (t *Trace) begin(stage domain.Stage) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.executions = append(t.executions, Execution{
		Stage:     stage,
		State:     StateRunning,
		StartedAt: time.Now(),
	})
	return len(t.executions) - 1
}

func (t *Trace) finish(index int, err error) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	exec := &t.executions[index]
	exec.CompletedAt = time.Now()
	exec.Elapsed = exec.CompletedAt.Sub(exec.StartedAt)
	exec.State = StateCompleted
	if err != nil {
		exec.State = StateFailed
		exec.Error = err.Error()
	}
	return exec.Elapsed
}

// Executions returns a copy of the recorded executions
func (t *Trace) Executions() []Execution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Execution(nil), t.executions...)
}

// Timings sums elapsed time per stage in milliseconds. Total is measured from
// NewTrace.
func (t *Trace) Timings() entities.StageTimings {
	t.mu.Lock()
	defer t.mu.Unlock()

	var timings entities.StageTimings
	for _, exec := range t.executions {
		ms := float64(exec.Elapsed) / float64(time.Millisecond)
		switch exec.Stage {
		case domain.StageSTT:
			timings.STTMs += ms
		case domain.StageLLM:
			timings.LLMMs += ms
		case domain.StageTTS:
			timings.TTSMs += ms
		}
	}
	timings.TotalMs = float64(time.Since(t.started)) / float64(time.Millisecond)
	return timings
}

// Runner executes stages. A zero timeout disables the per-stage deadline.
type Runner struct {
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRunner creates a stage runner
func NewRunner(timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		timeout: timeout,
		metrics: m,
		logger:  logger,
	}
}

// Run executes fn as the named stage. Any failure, including a panic or a
// missed deadline, comes back as a *domain.PipelineError tagged with stage.
func Run[T any](ctx context.Context, r *Runner, trace *Trace, stage domain.Stage, fn func(ctx context.Context) (T, error)) (T, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	index := trace.begin(stage)
	result, err := call(ctx, fn)
	elapsed := trace.finish(index, err)
	r.metrics.RecordStage(string(stage), elapsed, err)

	if err != nil {
		r.logger.Error("Stage failed",
			zap.String("stage", string(stage)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		var zero T
		return zero, domain.NewPipelineError(stage, err)
	}

	r.logger.Debug("Stage completed",
		zap.String("stage", string(stage)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	result, err = fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return result, err
}
