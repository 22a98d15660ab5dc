package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsRenamesKeys(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, closer := SetupWithOptions("lendingd", "test", Options{Level: "debug", Output: &buf})
	defer closer.Close()

	logger.Debug("market listed", "market", "USDC")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "market listed", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "lendingd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
}

func TestSetupWithOptionsWritesRotatingFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "lendingd.log")
	var buf bytes.Buffer
	logger, closer := SetupWithOptions("lendingd", "", Options{File: path, Output: &buf})
	logger.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestLevelFiltering(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, _ := SetupWithOptions("lendingd", "", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, RedactedValue, MaskField("signature", "0xabc").Value.String())
	require.Equal(t, "x", MaskField("driver", "x").Value.String())
	require.Equal(t, "", MaskField("signature", "").Value.String())
}

func TestRedactDSN(t *testing.T) {
	require.Equal(t, "postgres://lend:[REDACTED]@db:5432/events", RedactDSN("postgres://lend:s3cret@db:5432/events"))
	require.Equal(t, "host=db user=lend password=[REDACTED] dbname=events", RedactDSN("host=db user=lend password=s3cret dbname=events"))
	require.Equal(t, "events.db", RedactDSN("events.db"))
	require.Equal(t, "", RedactDSN("  "))
	require.Contains(t, RedactionAllowlist(), "driver")
}
