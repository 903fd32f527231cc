package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/daniacca/graphitecore/internal/config"
	"github.com/daniacca/graphitecore/internal/logging"
	"github.com/daniacca/graphitecore/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-ticks", "5", "-format", "json"})
	require.NoError(t, err)
	assert.Equal(t, 5, opts.ticks)
	assert.Equal(t, "json", opts.format)

	_, err = parseOptions([]string{"-ticks", "0"})
	require.Error(t, err)
	_, err = parseOptions([]string{"-format", "xml"})
	require.Error(t, err)
}

func TestLoadScenario_StockReactor(t *testing.T) {
	cfg, err := loadScenario(options{seed: 9})
	require.NoError(t, err)
	require.Len(t, cfg.Reactors, 1)
	assert.Equal(t, "sim", cfg.Reactors[0].ID)
	assert.Equal(t, int64(1), cfg.Reactors[0].Seed)
}

func TestLoadScenario_SeedOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reactors:
  - id: a
  - id: b
    seed: 3
`), 0o644))

	cfg, err := loadScenario(options{scenario: path, seed: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(11), cfg.Reactors[0].Seed)
	assert.Equal(t, int64(3), cfg.Reactors[1].Seed)
}

func TestSimulate_Deterministic(t *testing.T) {
	logger := logging.FromZap(zap.NewNop())
	runOnce := func() []result {
		cfg, err := loadScenario(options{})
		require.NoError(t, err)
		results, err := simulate(cfg, 20, logger)
		require.NoError(t, err)
		return results
	}

	first, second := runOnce(), runOnce()
	require.Len(t, first, 1)
	assert.Equal(t, 20, first[0].Summary.Ticks)
	assert.Positive(t, first[0].Summary.EnergyTotal)
	assert.Equal(t, first, second)
}

func TestSimulate_WritesTelemetry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "telemetry.csv")
	cfg, err := loadScenario(options{telemetry: path})
	require.NoError(t, err)
	cfg.Telemetry.Every = 2

	_, err = simulate(cfg, 10, logging.FromZap(zap.NewNop()))
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := telemetry.ReadRows(f)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, int64(2), rows[0].Tick)
	assert.Equal(t, "sim", rows[0].ReactorID)
}

func TestRun_JSONOutput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-ticks", "3", "-format", "json", "-log-level", "error"}, &out))

	var results []result
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Summary.Ticks)
}

func TestRun_TextOutput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-ticks", "3", "-log-level", "error"}, &out))
	assert.Contains(t, out.String(), "Simulation finished (reactor=sim, ticks=3")
	assert.Contains(t, out.String(), "k-factor")
}

func TestRun_InvalidScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	cfg := config.Default()
	cfg.Reactors = []config.ReactorConfig{{ID: "a", ControlRodDepth: 5}}
	require.NoError(t, cfg.WriteYAML(path))

	err := run([]string{"-scenario", path, "-ticks", "1"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control_rod_depth")
}
