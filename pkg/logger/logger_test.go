package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/cwrk-planet/roomcoord/pkg/logger"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseEnv(t *testing.T) {
	require.Equal(t, logger.EnvDev, logger.ParseEnv(""))
	require.Equal(t, logger.EnvStage, logger.ParseEnv("Staging"))
	require.Equal(t, logger.EnvProd, logger.ParseEnv(" production "))
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	require.Equal(t, logger.EnvDev, logger.DetectEnv())

	t.Setenv("APP_ENV", "prod")
	require.Equal(t, logger.EnvProd, logger.DetectEnv())
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service: "demo",
		Version: "v0.0.1",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelDebug,
		Output:  &buf,
	})
	slog.Info("hello world", logger.Conn("c-1"))

	out := buf.String()
	require.False(t, strings.HasPrefix(out, "{"), "expected text output, got %s", out)
	require.Contains(t, out, "hello world")
	require.Contains(t, out, "service=demo")
	require.Contains(t, out, "env=dev")
	require.Contains(t, out, "conn=c-1")
}

func TestInit_StageStd_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{Service: "demo", Env: logger.EnvStage, Backend: logger.BackendStd, Output: &buf})
	slog.Info("booted")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	require.Equal(t, "booted", m["msg"])
	require.Equal(t, "stage", m["env"])
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "demo",
		Version:          "1.2.3",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Level:            slog.LevelInfo,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})
	slog.Info("booted", slog.String("k", "v"), logger.Room("r-1"))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	require.Equal(t, "booted", m["msg"])
	require.Equal(t, "demo", m["service"])
	require.Equal(t, "prod", m["env"])
	require.Equal(t, "1.2.3", m["version"])
	require.Equal(t, "INFO", m["level"])
	require.Equal(t, "v", m["k"])
	require.Equal(t, "r-1", m["room"])
}

func TestAttrsFromCtx_PropagatesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger.Init(logger.Config{
		Service:          "demo",
		Env:              logger.EnvProd,
		Backend:          logger.BackendZap,
		Output:           &buf,
		SampleInitial:    100000,
		SampleThereafter: 100000,
	})

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	slog.InfoContext(ctx, "with trace", logger.Args(ctx)...)
	span.End()

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m), buf.String())
	require.NotNil(t, m["trace_id"])
	require.NotNil(t, m["span_id"])
	require.Equal(t, "with trace", m["msg"])
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	require.Nil(t, logger.AttrsFromCtx(context.Background()))
	require.Equal(t, []any{"k", 1}, logger.Args(context.Background(), "k", 1))
}
