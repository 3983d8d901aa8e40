package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/monitor"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/observability"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/process"
	store "github.com/satori-chatbots/chatbot-dojo-sub000/internal/repository"
	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/runner"
)

// Ingester persists the results of a successfully finished execution.
type Ingester interface {
	Ingest(ctx context.Context, exec *domain.Execution) error
}

// EventSink records an execution event.
type EventSink func(ctx context.Context, executionID string, eventType domain.EventType, payload interface{})

// CoordinatorConfig holds the timing knobs of the coordinator.
type CoordinatorConfig struct {
	PollInterval        time.Duration
	MonitorInterval     time.Duration
	MonitorJoinTimeout  time.Duration
	TerminationGrace    time.Duration
	TerminationDeadline time.Duration
	MonitorMaxErrors    int
	HeartbeatInterval   time.Duration
	// WriteRetryDeadline bounds the retries of lifecycle status writes.
	WriteRetryDeadline time.Duration
}

// Coordinator drives executions from launch to a terminal status.
type Coordinator struct {
	store    store.Store
	registry *runner.Registry
	procs    *process.Controller
	ingester Ingester
	cfg      CoordinatorConfig
	metrics  *observability.ExecutionMetrics
	emit     EventSink

	mu     sync.Mutex
	active map[string]*activeExecution
	wg     sync.WaitGroup
}

// activeExecution is the in-process state of one orchestration goroutine.
type activeExecution struct {
	ctx           context.Context
	cancel        context.CancelFunc
	stopRequested atomic.Bool
	done          chan struct{}

	mu   sync.Mutex
	proc *process.Handle
}

func (a *activeExecution) setProc(p *process.Handle) {
	a.mu.Lock()
	a.proc = p
	a.mu.Unlock()
}

// NewCoordinator creates a coordinator. metrics and emit may be nil.
func NewCoordinator(st store.Store, registry *runner.Registry, procs *process.Controller, ingester Ingester,
	cfg CoordinatorConfig, metrics *observability.ExecutionMetrics, emit EventSink) *Coordinator {
	if emit == nil {
		emit = func(context.Context, string, domain.EventType, interface{}) {}
	}
	return &Coordinator{
		store:    st,
		registry: registry,
		procs:    procs,
		ingester: ingester,
		cfg:      cfg,
		metrics:  metrics,
		emit:     emit,
		active:   make(map[string]*activeExecution),
	}
}

// Start tracks the execution and runs it on its own goroutine.
func (c *Coordinator) Start(exec *domain.Execution, cfg domain.RunConfig) {
	c.track(exec.ID)
	go c.Run(exec, cfg)
}

func (c *Coordinator) track(id string) *activeExecution {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ae, ok := c.active[id]; ok {
		return ae
	}
	ctx, cancel := context.WithCancel(context.Background())
	ae := &activeExecution{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	c.active[id] = ae
	c.wg.Add(1)
	return ae
}

func (c *Coordinator) untrack(id string, ae *activeExecution) {
	c.mu.Lock()
	if c.active[id] == ae {
		delete(c.active, id)
	}
	c.mu.Unlock()
	ae.cancel()
	close(ae.done)
	c.wg.Done()
}

func (c *Coordinator) lookup(id string) *activeExecution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[id]
}

// IsActive reports whether this process is orchestrating the execution.
func (c *Coordinator) IsActive(id string) bool {
	return c.lookup(id) != nil
}

// ActiveCount returns the number of executions orchestrated by this process.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Wait returns a channel closed when the execution's orchestration goroutine ends.
func (c *Coordinator) Wait(id string) <-chan struct{} {
	if ae := c.lookup(id); ae != nil {
		return ae.done
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Run orchestrates one execution to a terminal status. It never panics.
func (c *Coordinator) Run(exec *domain.Execution, cfg domain.RunConfig) {
	ae := c.track(exec.ID)
	defer c.untrack(exec.ID, ae)

	bg := context.Background()
	hbCtx, stopHeartbeat := context.WithCancel(bg)
	defer stopHeartbeat()
	go c.runHeartbeat(hbCtx, exec.ID)

	start := time.Now()
	spanCtx, span := observability.Tracer().Start(bg, "execution.run", trace.WithAttributes(
		attribute.String("execution.id", exec.ID),
		attribute.String("execution.kind", string(exec.Kind)),
	))
	defer span.End()

	if c.metrics != nil {
		c.metrics.Started(spanCtx, string(exec.Kind))
	}
	defer c.conclude(spanCtx, span, exec, start)

	var proc *process.Handle
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: coordinator panic for execution %s: %v", exec.ID, r)
			if proc != nil {
				_ = proc.Terminate(c.cfg.TerminationGrace)
			}
			c.finish(bg, exec, domain.Outcome{
				Status:         domain.ExecutionStatusError,
				ErrorMessage:   fmt.Sprintf("internal error: %v\n%s", r, debug.Stack()),
				ElapsedSeconds: time.Since(start).Seconds(),
			})
		}
	}()

	plan, err := c.registry.Build(exec, cfg)
	if err != nil {
		log.Printf("ERROR: failed to prepare execution %s: %v", exec.ID, err)
		c.finish(bg, exec, domain.Outcome{
			Status:         domain.ExecutionStatusError,
			ErrorMessage:   fmt.Sprintf("prepare error: %v", err),
			ElapsedSeconds: time.Since(start).Seconds(),
		})
		return
	}

	proc, err = c.procs.Start(plan.Command)
	if err != nil {
		log.Printf("ERROR: failed to launch execution %s: %v", exec.ID, err)
		c.finish(bg, exec, domain.Outcome{
			Status:         domain.ExecutionStatusError,
			ErrorMessage:   fmt.Sprintf("launch error: %v", err),
			ElapsedSeconds: time.Since(start).Seconds(),
		})
		return
	}
	ae.setProc(proc)

	marked, err := c.persist("mark running", exec.ID, func(ctx context.Context) (bool, error) {
		return c.store.MarkRunning(ctx, exec.ID, proc.PID())
	})
	if err != nil || !marked {
		log.Printf("WARN: execution %s could not be marked running (err=%v), terminating pid %d", exec.ID, err, proc.PID())
		if termErr := proc.Terminate(c.cfg.TerminationGrace); termErr != nil {
			log.Printf("WARN: failed to terminate execution %s: %v", exec.ID, termErr)
		}
		if err != nil {
			c.finish(bg, exec, domain.Outcome{
				Status:         domain.ExecutionStatusError,
				ErrorMessage:   fmt.Sprintf("failed to mark running: %v", err),
				ElapsedSeconds: time.Since(start).Seconds(),
			})
		}
		return
	}
	log.Printf("INFO: execution %s started (kind=%s, pid=%d)", exec.ID, exec.Kind, proc.PID())
	c.emit(bg, exec.ID, domain.EventTypeExecutionStarted, map[string]interface{}{
		"execution_id": exec.ID,
		"pid":          proc.PID(),
	})

	monCtx, monCancel := context.WithCancel(bg)
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		c.runMonitor(monCtx, exec, plan, proc)
	}()

	stopped := c.awaitExit(ae, exec.ID, proc)

	abandoned := false
	if stopped {
		// Shutdown cancels without writing STOPPED first.
		if _, err := c.persist("mark stopped", exec.ID, func(ctx context.Context) (bool, error) {
			return c.store.StopExecution(ctx, exec.ID)
		}); err != nil {
			log.Printf("WARN: failed to mark execution %s stopped: %v", exec.ID, err)
		}
		abandoned = c.stopProcess(bg, exec.ID, proc)
	}

	monCancel()
	select {
	case <-monDone:
	case <-time.After(c.cfg.MonitorJoinTimeout):
		log.Printf("WARN: monitor for execution %s did not stop within %s", exec.ID, c.cfg.MonitorJoinTimeout)
	}

	elapsed := time.Since(start)
	cur, err := c.store.GetExecution(bg, exec.ID)
	if err != nil {
		log.Printf("WARN: failed to re-read execution %s: %v", exec.ID, err)
	}
	if stopped || (cur != nil && cur.Status == domain.ExecutionStatusStopped) {
		outcome := domain.Outcome{
			Result:         fmt.Sprintf("Execution stopped by user after %s", elapsed.Round(time.Second)),
			ElapsedSeconds: elapsed.Seconds(),
		}
		if !abandoned {
			res := proc.Result()
			outcome.ExitCode = &res.ExitCode
			outcome.Stderr = res.Stderr
		}
		if _, err := c.persist("record stopped outcome", exec.ID, func(ctx context.Context) (bool, error) {
			return c.store.RecordStoppedOutcome(ctx, exec.ID, outcome)
		}); err != nil {
			log.Printf("WARN: failed to record stopped outcome for %s: %v", exec.ID, err)
		}
		log.Printf("INFO: execution %s stopped after %s", exec.ID, elapsed.Round(time.Millisecond))
		c.emitFinished(bg, exec.ID, domain.ExecutionStatusStopped, outcome)
		return
	}

	res := proc.Result()
	if !res.Success() {
		outcome := domain.Outcome{
			Status:         domain.ExecutionStatusFailed,
			ExitCode:       &res.ExitCode,
			Result:         res.Stdout,
			Stderr:         res.Stderr,
			ErrorMessage:   exitMessage(res),
			ElapsedSeconds: elapsed.Seconds(),
		}
		c.finish(bg, exec, outcome)
		return
	}

	if err := c.ingester.Ingest(spanCtx, exec); err != nil {
		log.Printf("ERROR: ingestion failed for execution %s: %v", exec.ID, err)
		c.emit(bg, exec.ID, domain.EventTypeIngestionFailed, domain.ErrorEventData{
			Code:    ingestErrorCode(err),
			Message: err.Error(),
		})
		c.finish(bg, exec, domain.Outcome{
			Status:         domain.ExecutionStatusFailed,
			ExitCode:       &res.ExitCode,
			Result:         res.Stdout,
			Stderr:         res.Stderr,
			ErrorMessage:   fmt.Sprintf("ingestion failed: %v", err),
			ElapsedSeconds: time.Since(start).Seconds(),
		})
		return
	}

	c.finish(bg, exec, domain.Outcome{
		Status:         domain.ExecutionStatusCompleted,
		ExitCode:       &res.ExitCode,
		Result:         res.Stdout,
		Stderr:         res.Stderr,
		ElapsedSeconds: time.Since(start).Seconds(),
	})
}

// awaitExit blocks until the process exits or a stop is observed, either via
// cancellation or a STOPPED status written by another process.
func (c *Coordinator) awaitExit(ae *activeExecution, id string, proc *process.Handle) bool {
	poll := c.cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-proc.Done():
			return ae.stopRequested.Load()
		case <-ae.ctx.Done():
			return true
		case <-ticker.C:
			cur, err := c.store.GetExecution(context.Background(), id)
			if err != nil {
				log.Printf("WARN: status poll failed for execution %s: %v", id, err)
				continue
			}
			if cur != nil && cur.Status == domain.ExecutionStatusStopped {
				ae.stopRequested.Store(true)
				return true
			}
		}
	}
}

// stopProcess terminates the tree and waits up to TerminationDeadline for it
// to exit. It reports whether the process had to be abandoned.
func (c *Coordinator) stopProcess(ctx context.Context, id string, proc *process.Handle) bool {
	if err := proc.Terminate(c.cfg.TerminationGrace); err != nil && !errors.Is(err, domain.ErrProcessGone) {
		log.Printf("WARN: failed to terminate execution %s: %v", id, err)
	}
	deadline := c.cfg.TerminationDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	select {
	case <-proc.Done():
		return false
	case <-time.After(deadline):
	}

	msg := fmt.Sprintf("process %d did not exit within %s after stop; abandoned", proc.PID(), deadline)
	log.Printf("ERROR: execution %s: %s", id, msg)
	if err := c.store.AnnotateError(ctx, id, msg); err != nil {
		log.Printf("WARN: failed to annotate execution %s: %v", id, err)
	}
	return true
}

func (c *Coordinator) runMonitor(ctx context.Context, exec *domain.Execution, plan runner.Plan, proc *process.Handle) {
	switch exec.Kind {
	case domain.ExecutionKindTestRun:
		m := &monitor.FilesystemMonitor{
			Store:                c.store,
			Interval:             c.cfg.MonitorInterval,
			MaxConsecutiveErrors: c.cfg.MonitorMaxErrors,
			OnProgress: func(d domain.ProgressEventData) {
				c.emit(context.Background(), exec.ID, domain.EventTypeProgress, d)
			},
		}
		m.Run(ctx, monitor.Target{
			ExecutionID:      exec.ID,
			ConversationRoot: plan.ConversationRoot,
			Profiles:         plan.Profiles,
			TotalUnits:       exec.TotalUnits,
		})
	case domain.ExecutionKindGenerationRun:
		m := &monitor.StreamMonitor{
			Store: c.store,
			OnProgress: func(d domain.ProgressEventData) {
				c.emit(context.Background(), exec.ID, domain.EventTypeStageChanged, d)
			},
		}
		m.Run(ctx, exec.ID, proc.Lines())
	}
}

// persist runs a lifecycle status write, retrying transient store errors with
// exponential backoff until WriteRetryDeadline has passed.
func (c *Coordinator) persist(what, id string, write func(ctx context.Context) (bool, error)) (bool, error) {
	deadline := c.cfg.WriteRetryDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	return backoff.Retry(ctx, func() (bool, error) {
		attempt++
		ok, err := write(ctx)
		if err != nil {
			log.Printf("WARN: %s of execution %s failed (attempt %d): %v", what, id, attempt, err)
		}
		return ok, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(deadline))
}

// runHeartbeat refreshes heartbeat_at while this process orchestrates the
// execution, so sweepers in other processes leave it alone.
func (c *Coordinator) runHeartbeat(ctx context.Context, id string) {
	interval := c.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.store.Heartbeat(ctx, id); err != nil && ctx.Err() == nil {
				log.Printf("WARN: heartbeat failed for execution %s: %v", id, err)
			}
		}
	}
}

// finish writes a terminal outcome. A lost race against a concurrent status
// write is logged and otherwise ignored.
func (c *Coordinator) finish(ctx context.Context, exec *domain.Execution, outcome domain.Outcome) {
	updated, err := c.persist("finish", exec.ID, func(ctx context.Context) (bool, error) {
		return c.store.FinishExecution(ctx, exec.ID, outcome)
	})
	if err != nil {
		log.Printf("ERROR: failed to finish execution %s as %s: %v", exec.ID, outcome.Status, err)
		return
	}
	if !updated {
		log.Printf("INFO: execution %s already terminal, dropping %s outcome", exec.ID, outcome.Status)
		return
	}
	log.Printf("INFO: execution %s finished with status %s", exec.ID, outcome.Status)
	c.emitFinished(ctx, exec.ID, outcome.Status, outcome)
}

func (c *Coordinator) emitFinished(ctx context.Context, id string, status domain.ExecutionStatus, outcome domain.Outcome) {
	c.emit(ctx, id, domain.EventTypeExecutionFinished, domain.FinishedEventData{
		ExecutionID:    id,
		Status:         status,
		ExitCode:       outcome.ExitCode,
		ElapsedSeconds: outcome.ElapsedSeconds,
		Error:          firstLine(outcome.ErrorMessage),
	})
}

// conclude records metrics and span status from the stored final status.
func (c *Coordinator) conclude(ctx context.Context, span trace.Span, exec *domain.Execution, start time.Time) {
	status := "UNKNOWN"
	if cur, err := c.store.GetExecution(context.Background(), exec.ID); err == nil && cur != nil {
		status = string(cur.Status)
	}
	span.SetAttributes(attribute.String("execution.status", status))
	if status != string(domain.ExecutionStatusCompleted) && status != string(domain.ExecutionStatusStopped) {
		span.SetStatus(codes.Error, status)
	}
	if c.metrics != nil {
		c.metrics.Finished(ctx, string(exec.Kind), status, time.Since(start))
	}
}

// Cancel requests a stop of a RUNNING execution. It returns false when the
// execution is not running. Termination problems are logged, not returned.
func (c *Coordinator) Cancel(ctx context.Context, id string) (bool, error) {
	exec, err := c.store.GetExecution(ctx, id)
	if err != nil {
		return false, err
	}
	if exec == nil {
		return false, domain.ErrNotFound
	}
	if exec.Status != domain.ExecutionStatusRunning {
		return false, nil
	}

	stopped, err := c.store.StopExecution(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to stop execution: %w", err)
	}
	if !stopped {
		return false, nil
	}
	c.emit(ctx, id, domain.EventTypeStopRequested, map[string]interface{}{"execution_id": id})

	if ae := c.lookup(id); ae != nil {
		ae.stopRequested.Store(true)
		ae.cancel()
		return true, nil
	}

	if exec.PID > 0 {
		go func(pid int) {
			if err := process.TerminatePID(pid, c.cfg.TerminationGrace); err != nil && !errors.Is(err, domain.ErrProcessGone) {
				log.Printf("WARN: failed to terminate pid %d of execution %s: %v", pid, id, err)
			}
		}(exec.PID)
	}
	return true, nil
}

// Shutdown stops every active execution and waits for their goroutines.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	active := make(map[string]*activeExecution, len(c.active))
	for id, ae := range c.active {
		active[id] = ae
	}
	c.mu.Unlock()

	for id, ae := range active {
		if _, err := c.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Printf("WARN: failed to stop execution %s during shutdown: %v", id, err)
		}
		ae.stopRequested.Store(true)
		ae.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func exitMessage(res process.ExitResult) string {
	switch {
	case res.Err != nil:
		return fmt.Sprintf("wait error: %v", res.Err)
	case res.Signal != "":
		return fmt.Sprintf("terminated by signal %s", res.Signal)
	}
	return fmt.Sprintf("exited with code %d", res.ExitCode)
}

func ingestErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrReportDirMissing):
		return "report_dir_missing"
	case errors.Is(err, domain.ErrReportFileNotFound):
		return "report_file_not_found"
	case errors.Is(err, domain.ErrMalformedReport):
		return "malformed_report"
	}
	return "ingestion_error"
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
