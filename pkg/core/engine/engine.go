// Package engine orchestrates the worker hive: it owns the shared state,
// the telemetry plumbing, the dispatch round-robin and the command loop.
package engine

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jihwankim/surge-utils/pkg/config"
	"github.com/jihwankim/surge-utils/pkg/core/state"
	"github.com/jihwankim/surge-utils/pkg/core/worker"
	"github.com/jihwankim/surge-utils/pkg/netx"
	"github.com/jihwankim/surge-utils/pkg/reporting"
	"github.com/jihwankim/surge-utils/pkg/telemetry"
	"github.com/jihwankim/surge-utils/pkg/tlsx"
	"github.com/jihwankim/surge-utils/pkg/traffic"
)

// Engine wires the swarm together and runs the command loop.
type Engine struct {
	cfg    *config.Config
	logger *reporting.Logger

	shared      *state.SharedState
	strategy    traffic.Strategy
	telemetryCh chan telemetry.Payload
	agg         *telemetry.Aggregator

	workerTxs     []chan worker.ExecutionTask
	dispatchIndex atomic.Uint64

	commands chan string
	wg       sync.WaitGroup

	startTime time.Time
}

// New builds an engine from configuration. Shared-state allocation and
// strategy selection happen here; failures abort startup.
func New(cfg *config.Config, logger *reporting.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	strategy, err := traffic.Build(cfg.Traffic, cfg.Engine.NumWorkers)
	if err != nil {
		return nil, err
	}

	shared := state.New(cfg.Engine.NumWorkers)
	shared.TargetRPS.Store(uint64(cfg.Engine.TargetRPS))
	shared.JitterFactor.Store(uint64(cfg.Engine.JitterFactor))

	telemetryCh := make(chan telemetry.Payload, cfg.Engine.TelemetryCapacity)

	return &Engine{
		cfg:         cfg,
		logger:      logger,
		shared:      shared,
		strategy:    strategy,
		telemetryCh: telemetryCh,
		agg:         telemetry.NewAggregator(telemetryCh, logger),
		workerTxs:   make([]chan worker.ExecutionTask, cfg.Engine.NumWorkers),
		commands:    make(chan string, 100),
	}, nil
}

// SharedState exposes the atomic composite for the external dashboard.
func (e *Engine) SharedState() *state.SharedState { return e.shared }

// Aggregator exposes the telemetry aggregator for observers.
func (e *Engine) Aggregator() *telemetry.Aggregator { return e.agg }

// Submit enqueues an operator command. It blocks only if the command
// queue itself is full.
func (e *Engine) Submit(cmd string) { e.commands <- cmd }

// Run spawns the aggregator thread and the hive, then serves commands
// until SHUTDOWN or context cancellation. It returns after the hive has
// drained and the final run report is written.
func (e *Engine) Run(ctx context.Context) error {
	e.startTime = time.Now()

	if err := e.agg.Start(); err != nil {
		return fmt.Errorf("spawn telemetry aggregator: %w", err)
	}

	e.spawnWorkers()
	e.logger.Info("Swarm initialized", "workers", e.cfg.Engine.NumWorkers, "strategy", e.strategy.Name())

	status := reporting.StatusCompleted
loop:
	for {
		select {
		case <-ctx.Done():
			status = reporting.StatusStopped
			break loop
		case cmd := <-e.commands:
			e.logger.Info("Orchestrator received command", "command", cmd)
			if !e.handleCommand(cmd) {
				break loop
			}
		}
	}

	// Close inboxes and let the workers drain their backlogs.
	for _, tx := range e.workerTxs {
		close(tx)
	}
	e.wg.Wait()

	close(e.telemetryCh)
	e.agg.Wait()

	e.writeReport(status)
	e.logger.Info("Engine shut down",
		"requests", e.shared.TotalRequests.Load(),
		"errors", e.shared.ErrorCount.Load(),
		"p99_us", e.agg.P99LatencyUs())
	return nil
}

// spawnWorkers builds one inbox and one worker task per hive slot.
func (e *Engine) spawnWorkers() {
	var localAddr *net.TCPAddr
	if e.cfg.Transport.LocalAddr != "" {
		if ip := net.ParseIP(e.cfg.Transport.LocalAddr); ip != nil {
			localAddr = &net.TCPAddr{IP: ip}
		} else {
			e.logger.Warn("Ignoring unparseable local_addr", "local_addr", e.cfg.Transport.LocalAddr)
		}
	}

	var resolver worker.ResolverFunc
	if e.cfg.Transport.UseDoH {
		doh := netx.NewDoHClient(e.cfg.Transport.DoHEndpoint)
		rebind := e.cfg.Transport.RebindTarget
		resolver = func(ctx context.Context, host string) (string, error) {
			return doh.Resolve(ctx, host, rebind)
		}
	}

	// One cycler, and with it one native provider and its session cache,
	// serves the whole hive.
	cycler, err := tlsx.NewDefaultCycler()
	if err != nil {
		e.logger.Warn("Failed to build shared TLS cycler", "error", err)
	}

	for id := 0; id < e.cfg.Engine.NumWorkers; id++ {
		inbox := make(chan worker.ExecutionTask, e.cfg.Engine.InboxCapacity)
		e.workerTxs[id] = inbox

		w, err := worker.New(worker.Options{
			ID:        id,
			Inbox:     inbox,
			Telemetry: e.telemetryCh,
			State:     e.shared,
			Strategy:  e.strategy,
			Logger:    e.logger,
			Cycler:    cycler,
			LocalAddr: localAddr,
			Resolver:  resolver,
			Timeout:   e.cfg.Engine.RequestTimeout,
		})
		if err != nil {
			e.logger.Warn("Failed to initialize worker", "id", id, "error", err)
			continue
		}

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			w.Run()
		}()
	}
}

// handleCommand executes one operator command. It returns false when the
// engine should shut down.
func (e *Engine) handleCommand(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if cmd == "SHUTDOWN" {
		return false
	}

	profile, ok := profileFor(cmd)
	if !ok {
		e.logger.Warn("Unknown command ignored", "command", cmd)
		return true
	}

	e.dispatch(profile)
	return true
}

// profileFor maps a DISPATCH command to its attack profile.
func profileFor(cmd string) (tlsx.AttackProfile, bool) {
	switch cmd {
	case "DISPATCH":
		return tlsx.AttackProfile{ForceHTTP1: true}, true
	case "DISPATCH STEALTH":
		return tlsx.AttackProfile{ForceHTTP1: true, Use0RTT: true, FragmentHandshake: true}, true
	case "DISPATCH LEGACY":
		return tlsx.AttackProfile{ForceHTTP1: true, ForceTLS11: true, ForceHTTP10: true}, true
	case "DISPATCH H2":
		return tlsx.AttackProfile{}, true
	default:
		return tlsx.AttackProfile{}, false
	}
}

// dispatch routes one task to the next worker in strict round-robin.
func (e *Engine) dispatch(profile tlsx.AttackProfile) {
	task := worker.ExecutionTask{
		Target: &worker.Target{
			URL:     e.cfg.Target.URL,
			Method:  e.cfg.Target.Method,
			Headers: e.cfg.Target.Headers,
		},
		PayloadTemplate: e.cfg.Target.PayloadTemplate,
		Profile:         profile,
	}

	idx := e.nextWorker()
	e.workerTxs[idx] <- task
}

// nextWorker advances the dispatch index. Modulo over a monotonic atomic
// keeps the distribution exact regardless of who is calling.
func (e *Engine) nextWorker() int {
	return int((e.dispatchIndex.Add(1) - 1) % uint64(len(e.workerTxs)))
}

// writeReport persists the operator-facing run summary.
func (e *Engine) writeReport(status reporting.RunStatus) {
	storage, err := reporting.NewStorage(e.cfg.Reporting.OutputDir, e.cfg.Reporting.KeepLastN, e.logger)
	if err != nil {
		e.logger.Warn("Failed to create report storage", "error", err)
		return
	}

	end := time.Now()
	report := &reporting.RunReport{
		RunID:         fmt.Sprintf("%x", e.startTime.UnixNano()),
		Target:        e.cfg.Target.URL,
		Strategy:      e.strategy.Name(),
		Workers:       e.cfg.Engine.NumWorkers,
		StartTime:     e.startTime,
		EndTime:       end,
		Duration:      end.Sub(e.startTime).String(),
		Status:        status,
		TotalRequests: e.shared.TotalRequests.Load(),
		TotalBytes:    e.shared.TotalBytes.Load(),
		ErrorCount:    e.shared.ErrorCount.Load(),
		P99LatencyUs:  e.agg.P99LatencyUs(),
	}

	if _, err := storage.SaveReport(report); err != nil {
		e.logger.Warn("Failed to save run report", "error", err)
	}
}
