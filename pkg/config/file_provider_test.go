package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFileProvider_InitialLoad(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	p, err := NewFileProvider(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	cfg := p.Current()
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Modules, 3)
}

func TestFileProvider_InitialLoadFailure(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"), testLogger())
	assert.Error(t, err)
}

func TestFileProvider_ReloadOnChange(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	p, err := NewFileProvider(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	updates := p.Subscribe()
	// first message is the current snapshot
	first := <-updates
	require.Len(t, first.Modules, 3)

	updated := `
modules:
  - name: boarding-feature
    domain: boarding
    layer: feature
  - name: boarding-domain
    domain: boarding
    layer: domain
  - name: shared-util
    domain: shared
    layer: util
    visibility: shared
  - name: checkin-api
    domain: checkin
    layer: api
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case cfg := <-updates:
		assert.Len(t, cfg.Modules, 4)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestFileProvider_KeepsSnapshotOnBadReload(t *testing.T) {
	path := writeConfig(t, sampleYAML)

	p, err := NewFileProvider(path, testLogger())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, os.WriteFile(path, []byte("modules: ["), 0o600))

	// Give the debounce and reload a moment to run, then confirm the old
	// snapshot is still served.
	time.Sleep(500 * time.Millisecond)
	assert.Len(t, p.Current().Modules, 3)
}
