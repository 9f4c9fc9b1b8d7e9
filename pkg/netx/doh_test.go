package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoHServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/dns-json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/dns-json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoHResolve(t *testing.T) {
	srv := newDoHServer(t, `{"Status":0,"Answer":[{"type":5,"data":"cname.example."},{"type":1,"data":"192.0.2.10"}]}`)

	c := NewDoHClient(srv.URL)
	addr, err := c.Resolve(context.Background(), "victim.example", "")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", addr)
}

func TestDoHResolveNoAnswer(t *testing.T) {
	srv := newDoHServer(t, `{"Status":3,"Answer":[]}`)

	c := NewDoHClient(srv.URL)
	_, err := c.Resolve(context.Background(), "missing.example", "")
	assert.Error(t, err)
}

func TestDoHRebindingAlternates(t *testing.T) {
	srv := newDoHServer(t, `{"Status":0,"Answer":[{"type":1,"data":"192.0.2.10"}]}`)

	c := NewDoHClient(srv.URL)
	ctx := context.Background()

	first, err := c.Resolve(ctx, "victim.example", "10.0.0.66")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", first)

	second, err := c.Resolve(ctx, "victim.example", "10.0.0.66")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.66", second)

	third, err := c.Resolve(ctx, "victim.example", "10.0.0.66")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", third)
}
