package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websentinel/go-server/internal/config"
	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/scoring"
)

func writeArtifacts(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	width := len(features.Schema)

	hidden := scoring.Layer{Activation: scoring.ActivationReLU, Bias: []float64{0}}
	for i := 0; i < width; i++ {
		hidden.Weights = append(hidden.Weights, []float64{0})
	}
	model := scoring.DenseNetwork{
		Version:  features.SchemaVersion,
		Features: features.Schema,
		Layers: []scoring.Layer{
			hidden,
			{Activation: scoring.ActivationSigmoid, Bias: []float64{0}, Weights: [][]float64{{1}}},
		},
	}
	scaler := scoring.Normalizer{
		Features: features.Schema,
		Mean:     make([]float64, width),
		Scale:    make([]float64, width),
	}

	write := func(name string, v any) string {
		body, err := json.Marshal(v)
		require.NoError(t, err)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, body, 0o600))
		return path
	}
	return write("model.json", model), write("scaler.json", scaler)
}

func testConfig(modelPath, scalerPath string) *config.Config {
	return &config.Config{
		ModelPath:       modelPath,
		ScalerPath:      scalerPath,
		LookupTimeout:   time.Second,
		AnalysisTimeout: 5 * time.Second,
		MaxConcurrent:   2,
		LogFormat:       "text",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewBuildsAnalyzer(t *testing.T) {
	modelPath, scalerPath := writeArtifacts(t)
	p, err := New(context.Background(), testConfig(modelPath, scalerPath), quietLogger())
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, p.Analyzer)
	assert.Equal(t, 2, p.Analyzer.Capacity())
	require.Len(t, p.Caches, 2)
	assert.Equal(t, "dns", p.Caches[0].Stats().Name)
	assert.Equal(t, "registration", p.Caches[1].Stats().Name)
}

func TestNewRejectsBadArtifacts(t *testing.T) {
	_, scalerPath := writeArtifacts(t)
	_, err := New(context.Background(), testConfig("/nonexistent/model.json", scalerPath), quietLogger())
	var cfgErr *scoring.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewToleratesMissingOptionalServices(t *testing.T) {
	modelPath, scalerPath := writeArtifacts(t)
	cfg := testConfig(modelPath, scalerPath)
	cfg.GeoIPASNDB = filepath.Join(t.TempDir(), "missing.mmdb")
	cfg.RedisURL = "not-a-redis-url"

	p, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer p.Close()
	assert.Len(t, p.Caches, 2, "falls back to the in-memory registration cache")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger("json", &buf, slog.LevelInfo).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLogger("text", &buf, slog.LevelInfo).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
}
