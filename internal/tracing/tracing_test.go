package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Enabled)
	require.Equal(t, "file", cfg.Exporter)
	require.Equal(t, "arena", cfg.ServiceName)
	require.Equal(t, 1.0, cfg.SampleRate)
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanRun)
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")

	_, err = NewProvider(Config{Enabled: true, Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_EnabledWithoutExporter(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: ExporterNone, SampleRate: 7})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanTrial)
	require.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "arena.jsonl")
	p, err := NewProvider(Config{Enabled: true, Exporter: "file", FilePath: path})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	ctx, run := p.Tracer().Start(context.Background(), SpanRun)
	run.SetAttributes(attribute.String(AttrExperimentName, "pogona_20210314T092653"))
	_, trial := p.Tracer().Start(ctx, SpanTrial)
	trial.SetAttributes(attribute.Int(AttrTrialNumber, 1))
	trial.AddEvent(EventStimulusStarted)
	trial.End()
	run.SetStatus(codes.Ok, "")
	run.End()

	require.NoError(t, p.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records := map[string]SpanRecord{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records[rec.Name] = rec
	}
	require.Len(t, records, 2)
	require.Equal(t, records[SpanRun].SpanID, records[SpanTrial].ParentID)
	require.Equal(t, "OK", records[SpanRun].Status)
	require.Equal(t, float64(1), records[SpanTrial].Attributes[AttrTrialNumber])
	require.Equal(t, []string{EventStimulusStarted}, records[SpanTrial].Events)
}

func TestFileExporter_ShutdownTwiceAndExportAfter(t *testing.T) {
	exp, err := NewFileExporter(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)

	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.Shutdown(context.Background()))

	stub := tracetest.SpanStub{Name: SpanWait, StartTime: time.Now(), EndTime: time.Now()}
	err = exp.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.Error(t, err)
}

func TestNewSpanRecord_Error(t *testing.T) {
	start := time.Now()
	stub := tracetest.SpanStub{
		Name:       SpanWait,
		StartTime:  start,
		EndTime:    start.Add(1500 * time.Microsecond),
		Status:     sdktrace.Status{Code: codes.Error, Description: "aborted"},
		Attributes: []attribute.KeyValue{attribute.String(AttrWaitOutcome, "abort")},
	}

	rec := NewSpanRecord(stub.Snapshot())
	require.Equal(t, "ERROR", rec.Status)
	require.Equal(t, "aborted", rec.StatusMsg)
	require.Equal(t, 1.5, rec.DurationMs)
	require.Equal(t, "abort", rec.Attributes[AttrWaitOutcome])
	require.Empty(t, rec.ParentID)
}
