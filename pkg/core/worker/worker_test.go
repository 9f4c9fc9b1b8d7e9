package worker

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/surge-utils/pkg/core/state"
	"github.com/jihwankim/surge-utils/pkg/reporting"
	"github.com/jihwankim/surge-utils/pkg/telemetry"
	"github.com/jihwankim/surge-utils/pkg/tlsx"
	"github.com/jihwankim/surge-utils/pkg/traffic"
)

func testLogger() *reporting.Logger {
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  reporting.LogLevelError,
		Format: reporting.LogFormatJSON,
		Output: io.Discard,
	})
}

// fastStrategy keeps tests quick: zero delay, no synchronization.
type fastStrategy struct{}

func (fastStrategy) NextDelay(_ traffic.Metrics) time.Duration { return 0 }
func (fastStrategy) Wait()                                     {}
func (fastStrategy) Name() string                              { return "fast" }

func startWorker(t *testing.T, id int, shared *state.SharedState, tch chan telemetry.Payload) (chan<- ExecutionTask, func()) {
	t.Helper()

	inbox := make(chan ExecutionTask, 100)
	w, err := New(Options{
		ID:        id,
		Inbox:     inbox,
		Telemetry: tch,
		State:     shared,
		Strategy:  fastStrategy{},
		Logger:    testLogger(),
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	return inbox, func() {
		close(inbox)
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("worker did not shut down")
		}
	}
}

func TestStructuredPathCountsExactlyOncePerTask(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	target := &Target{URL: srv.URL, Method: "POST", Headers: map[string]string{"X-Probe": "1"}}
	const tasks = 25
	for i := 0; i < tasks; i++ {
		inbox <- ExecutionTask{Target: target, PayloadTemplate: "tmpl", Profile: tlsx.AttackProfile{ForceHTTP1: true}}
	}
	stop()

	assert.EqualValues(t, tasks, hits.Load())
	assert.EqualValues(t, tasks, shared.TotalRequests.Load())
	assert.EqualValues(t, 0, shared.ErrorCount.Load())
	assert.Equal(t, state.StatusDead, shared.WorkerStatusOf(1))
}

func TestStructuredPathAppliesHeadersAndMethod(t *testing.T) {
	var gotMethod, gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		gotHeader.Store(r.Header.Get("X-Audit"))
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	inbox <- ExecutionTask{
		Target:  &Target{URL: srv.URL, Method: "put", Headers: map[string]string{"X-Audit": "on"}},
		Profile: tlsx.AttackProfile{ForceHTTP1: true},
	}
	stop()

	assert.Equal(t, "PUT", gotMethod.Load())
	assert.Equal(t, "on", gotHeader.Load())
}

func TestStructuredPathErrorIncrementsErrorCount(t *testing.T) {
	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	// Nothing listens on this port.
	inbox <- ExecutionTask{Target: &Target{URL: "http://127.0.0.1:1/", Method: "GET"}}
	stop()

	assert.EqualValues(t, 0, shared.TotalRequests.Load())
	assert.EqualValues(t, 1, shared.ErrorCount.Load())
}

func TestStructuredPathCapsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		chunk := make([]byte, 1024*1024)
		for i := 0; i < 11; i++ {
			w.Write(chunk)
		}
	}))
	defer srv.Close()

	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	inbox <- ExecutionTask{Target: &Target{URL: srv.URL, Method: "GET"}}
	stop()

	// Truncation is not an error; the reported size stops at the cap.
	assert.EqualValues(t, 1, shared.TotalRequests.Load())
	assert.EqualValues(t, 0, shared.ErrorCount.Load())
	assert.EqualValues(t, maxResponseBytes, shared.TotalBytes.Load())
}

func TestRawPathWritesPayload(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan int, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				n, _ := io.Copy(io.Discard, c)
				received <- int(n)
			}(conn)
		}
	}()

	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	inbox <- ExecutionTask{
		Target:  &Target{URL: "raw://" + ln.Addr().String(), Method: "POST"},
		Profile: tlsx.AttackProfile{ForceHTTP1: true},
	}
	stop()

	require.EqualValues(t, 1, shared.TotalRequests.Load())
	select {
	case n := <-received:
		assert.Greater(t, n, 0)
		assert.EqualValues(t, shared.TotalBytes.Load(), n)
	case <-time.After(5 * time.Second):
		t.Fatal("raw payload never arrived")
	}
}

func TestRawPathForceHTTP10OverwritesPayload(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	shared := state.New(2)
	inbox, stop := startWorker(t, 1, shared, nil)

	inbox <- ExecutionTask{
		Target:  &Target{URL: "raw://" + ln.Addr().String(), Method: "GET"},
		Profile: tlsx.AttackProfile{ForceHTTP1: true, ForceHTTP10: true},
	}
	stop()

	select {
	case data := <-received:
		assert.Equal(t, "GET / HTTP/1.0\r\n\r\n", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("raw payload never arrived")
	}
}

func selfSignedServerConfig(t *testing.T, nextProtos []string) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		NextProtos:   nextProtos,
	}
}

func TestRawHTTPSPathALPNCoherence(t *testing.T) {
	// Mock TLS peer advertising h2 first: with ForceHTTP1 the handshake
	// must still settle on http/1.1.
	cfg := selfSignedServerConfig(t, []string{"h2", "http/1.1"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	negotiated := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tlsConn := tls.Server(conn, cfg)
		if err := tlsConn.Handshake(); err != nil {
			negotiated <- "handshake-error: " + err.Error()
			return
		}
		negotiated <- tlsConn.ConnectionState().NegotiatedProtocol
		io.Copy(io.Discard, tlsConn)
	}()

	shared := state.New(2)

	inbox := make(chan ExecutionTask, 1)
	cycler, err := tlsx.NewJa3Cycler(tlsx.NewNativeProvider())
	require.NoError(t, err)
	w, err := New(Options{
		ID:       1,
		Inbox:    inbox,
		State:    shared,
		Strategy: fastStrategy{},
		Logger:   testLogger(),
		Cycler:   cycler,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)
	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	inbox <- ExecutionTask{
		Target:  &Target{URL: "raw-https://" + ln.Addr().String(), Method: "POST"},
		Profile: tlsx.AttackProfile{ForceHTTP1: true},
	}
	close(inbox)
	<-done

	select {
	case proto := <-negotiated:
		assert.Equal(t, "http/1.1", proto)
	case <-time.After(5 * time.Second):
		t.Fatal("peer never completed handshake")
	}
	assert.EqualValues(t, 1, shared.TotalRequests.Load())
}

func TestTelemetrySyncShipsHistogram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	shared := state.New(2)
	tch := make(chan telemetry.Payload, 1000)
	inbox, stop := startWorker(t, 1, shared, tch)

	target := &Target{URL: srv.URL, Method: "GET"}
	for i := 0; i < 120; i++ {
		inbox <- ExecutionTask{Target: target, Profile: tlsx.AttackProfile{ForceHTTP1: true}}
	}
	stop()
	close(tch)

	var snapshots, traces int
	var snapshotSamples int64
	for p := range tch {
		switch {
		case p.Histogram != nil:
			snapshots++
			if h := hdrhistogram.Import(p.Histogram); h != nil {
				snapshotSamples += h.TotalCount()
			}
		case p.Attack != nil:
			traces++
		}
	}

	assert.GreaterOrEqual(t, snapshots, 1, "no histogram snapshot shipped after 120 samples")
	assert.Equal(t, 120, traces)
	assert.Greater(t, snapshotSamples, int64(0))
}

func TestFullTelemetryChannelNeverBlocksWorker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	shared := state.New(2)
	tch := make(chan telemetry.Payload, 1)
	tch <- telemetry.Payload{} // pre-fill to capacity, nobody drains

	inbox, stop := startWorker(t, 1, shared, tch)

	target := &Target{URL: srv.URL, Method: "GET"}
	start := time.Now()
	for i := 0; i < 50; i++ {
		inbox <- ExecutionTask{Target: target, Profile: tlsx.AttackProfile{ForceHTTP1: true}}
	}
	stop()

	assert.EqualValues(t, 50, shared.TotalRequests.Load())
	assert.Less(t, time.Since(start), 30*time.Second)
}

func TestSplitRawURL(t *testing.T) {
	cases := []struct {
		url   string
		host  string
		port  string
		isTLS bool
	}{
		{"raw://example.test", "example.test", "80", false},
		{"raw://example.test:8080", "example.test", "8080", false},
		{"raw-https://example.test", "example.test", "443", true},
		{"raw-https://example.test:8443", "example.test", "8443", true},
		{"raw://10.0.0.5:9999", "10.0.0.5", "9999", false},
		{"raw://[::1]:8080", "::1", "8080", false},
		{"raw-https://[2001:db8::1]", "2001:db8::1", "443", true},
		{"raw://::1", "::1", "80", false},
	}
	for _, tc := range cases {
		host, port, isTLS := splitRawURL(tc.url)
		assert.Equal(t, tc.host, host, tc.url)
		assert.Equal(t, tc.port, port, tc.url)
		assert.Equal(t, tc.isTLS, isTLS, tc.url)
	}
}

func TestPreciseSleepShortDurations(t *testing.T) {
	for _, d := range []time.Duration{50 * time.Microsecond, 500 * time.Microsecond} {
		start := time.Now()
		PreciseSleep(d)
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, d)
		assert.Less(t, elapsed, d+20*time.Millisecond)
	}
	// Zero and negative return immediately.
	start := time.Now()
	PreciseSleep(0)
	PreciseSleep(-time.Second)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}
