package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}

	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("verbose")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestNamedLoggerCarriesName(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	InitializeWith(&buf, slog.LevelInfo, FormatJSON)

	Named("proxy_deployer").With("address", "0x1").Info("deployed")
	Named("proxy_deployer").Debug("dropped below level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "proxy_deployer", entry["name"])
	assert.Equal(t, "0x1", entry["address"])
	assert.Equal(t, "deployed", entry["msg"])
}

func TestTextFormat(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	InitializeWith(&buf, slog.LevelDebug, FormatText)
	Named("check").Debug("case passed")

	assert.Contains(t, buf.String(), "name=check")
	assert.Contains(t, buf.String(), `msg="case passed"`)
}
