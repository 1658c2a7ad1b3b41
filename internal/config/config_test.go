package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	valid := Load()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Pipeline)
	}{
		{"zero k", func(p *Pipeline) { p.K = 0 }},
		{"negative k", func(p *Pipeline) { p.K = -1 }},
		{"tau above one", func(p *Pipeline) { p.Tau = 1.5 }},
		{"negative alpha", func(p *Pipeline) { p.Alpha = -0.1 }},
		{"negative weight", func(p *Pipeline) { p.CategoryWeight = -0.2 }},
		{"unknown tau mode", func(p *Pipeline) { p.TauMode = "median" }},
		{"percentile out of range", func(p *Pipeline) { p.TauMode = TauAdaptive; p.TauPercentile = 100 }},
		{"zero dimension", func(p *Pipeline) { p.Dimension = 0 }},
		{"zero batch size", func(p *Pipeline) { p.BatchSize = 0 }},
		{"negative concurrency", func(p *Pipeline) { p.Concurrency = -2 }},
		{"negative max retries", func(p *Pipeline) { p.MaxRetries = -1 }},
		{"review without model", func(p *Pipeline) { p.LLMReview = true; p.LLMModel = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := []byte("k: 5\ntau: 0.7\ntau_mode: adaptive\ntau_percentile: 90\nalpha: 0.5\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.K)
	assert.Equal(t, 0.7, cfg.Tau)
	assert.Equal(t, TauAdaptive, cfg.TauMode)
	assert.Equal(t, 90.0, cfg.TauPercentile)
	assert.Equal(t, 0.5, cfg.Alpha)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.8, cfg.TextWeight)
	assert.Equal(t, int64(42), cfg.Seed)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: -3\n"), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
