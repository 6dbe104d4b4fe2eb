package log

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormat_FieldsAndOrphanKey(t *testing.T) {
	ts := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	got := Format(ts, LevelError, CatOrch, "trial failed", "trial", 2, "orphan")
	require.Equal(t, "2025-12-06T10:45:00 [ERROR] [orch] trial failed trial=2 orphan=<missing>\n", got)
}

func TestLog_RespectsMinLevelAndEnabled(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(func() { defaultLogger = nil })

	SetMinLevel(LevelWarn)
	Info(CatStore, "dropped")
	Warn(CatStore, "kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "[WARN] [store] kept")

	SetEnabled(false)
	Error(CatStore, "silenced")
	require.NotContains(t, buf.String(), "silenced")
}

func TestErrorErr_AppendsError(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(func() { defaultLogger = nil })

	ErrorErr(CatBus, "publish failed", errors.New("broker down"), "topic", "cmd/visual_app/led_light")
	require.Contains(t, buf.String(), "topic=cmd/visual_app/led_light error=broker down")

	ErrorErr(CatBus, "nil error", nil)
	require.Contains(t, buf.String(), "error=<nil>")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelInfo, ParseLevel("info"))
	require.Equal(t, LevelWarn, ParseLevel("WARN"))
	require.Equal(t, LevelError, ParseLevel("error"))
	require.Equal(t, LevelDebug, ParseLevel("anything"))
}

func TestLog_NoopWithoutInit(t *testing.T) {
	defaultLogger = nil
	require.NotPanics(t, func() {
		Debug(CatConfig, "nothing happens")
	})
}
