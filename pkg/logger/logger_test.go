package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewProductionWritesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New("production", &buf)

	l.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	l.Info().Str("period", "1403/01").Msg("分配完成")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "1403/01", entry["period"])
	require.Equal(t, "分配完成", entry["message"])
}

func TestNewDevelopmentEnablesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New("development", &buf)
	require.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l.Debug().Msg("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	prev := *L()
	t.Cleanup(func() { Set(prev) })

	Set(New("production", &buf))
	l := Component("OutboxSender")
	l.Info().Msg("started")
	require.Contains(t, buf.String(), `"component":"OutboxSender"`)
}
