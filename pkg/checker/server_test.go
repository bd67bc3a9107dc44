package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modguard/modguard/pkg/config"
	"github.com/modguard/modguard/pkg/domain"
	"github.com/modguard/modguard/pkg/telemetry"
)

const watchYAML = `
modules:
  - name: boarding-feature
    domain: boarding
    layer: feature
    imports: [boarding-domain]
  - name: boarding-domain
    domain: boarding
    layer: domain
`

func startWatchServer(t *testing.T) (*Server, string, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "modguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(watchYAML), 0o600))

	provider, err := config.NewFileProvider(path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	s := NewServer(provider, telemetry.NewPromMetrics(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr := fmt.Sprintf("127.0.0.1:%d", pickPort(t))
	require.NoError(t, s.Start(ctx, addr))
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
		defer shutdownCancel()
		_ = s.Stop(shutdownCtx)
	})

	return s, addr, path
}

func pickPort(t *testing.T) int {
	t.Helper()
	// Bind port 0 to find a free port, then release it for the server.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func waitForReport(t *testing.T, s *Server) *domain.CheckReport {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if rep := s.LastReport(); rep != nil {
			return rep
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for first check run")
	return nil
}

func TestServer_ServesReport(t *testing.T) {
	s, addr, _ := startWatchServer(t)
	waitForReport(t, s)

	resp, err := http.Get("http://" + addr + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep domain.CheckReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.True(t, rep.Clean())
	assert.Equal(t, 2, rep.Modules)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	s, addr, _ := startWatchServer(t)
	waitForReport(t, s)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RerunsOnConfigChange(t *testing.T) {
	s, _, path := startWatchServer(t)
	first := waitForReport(t, s)
	require.True(t, first.Clean())

	broken := `
modules:
  - name: boarding-feature
    domain: boarding
    layer: feature
    imports: [checkin-domain]
  - name: checkin-domain
    domain: checkin
    layer: domain
`
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o600))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rep := s.LastReport()
		if rep != nil && !rep.Clean() {
			assert.Equal(t, domain.ReasonDomainPrivate, rep.Violations[0].Decision.Reason)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for re-check after config change")
}
