// Package observability configures the process-wide slog logger.
//
// Text and JSON output go to stderr. The otel format routes records through the
// OpenTelemetry log SDK so they can be exported next to traces.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Format is the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatOTel Format = "otel"
)

// Exporter names the OpenTelemetry log exporter used by FormatOTel.
type Exporter string

const (
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
)

// instrumentationName identifies the slog bridge logger.
const instrumentationName = "github.com/moneytrail/spendwise"

// ShutdownFunc flushes and releases logging resources.
type ShutdownFunc func(context.Context) error

// Options configures Instrument.
type Options struct {
	Level    slog.Level
	Format   Format
	Exporter Exporter
	// Endpoint overrides the OTLP endpoint URL.
	Endpoint string
	// Writer receives text, JSON and stdout-exported records. Defaults to os.Stderr.
	Writer io.Writer
}

// Instrument installs the default slog logger described by opts.
func Instrument(ctx context.Context, opts Options) (ShutdownFunc, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	switch opts.Format {
	case FormatText, "":
		slog.SetDefault(slog.New(slog.NewTextHandler(w, handlerOpts)))
		return noop, nil
	case FormatJSON:
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, handlerOpts)))
		return noop, nil
	case FormatOTel:
		return instrumentOTel(ctx, opts, w)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", opts.Format)
	}
}

func instrumentOTel(ctx context.Context, opts Options, w io.Writer) (ShutdownFunc, error) {
	exporter, err := newExporter(ctx, opts, w)
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", opts.Exporter, err)
	}

	// Records below the configured level are dropped before batching
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(opts.Level))
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(provider)

	slog.SetDefault(slog.New(otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))))

	return provider.Shutdown, nil
}

func newExporter(ctx context.Context, opts Options, w io.Writer) (sdklog.Exporter, error) {
	switch opts.Exporter {
	case ExporterStdout, "":
		return stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPHTTP:
		var httpOpts []otlploghttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlploghttp.WithEndpointURL(opts.Endpoint))
		}
		return otlploghttp.New(ctx, httpOpts...)
	case ExporterOTLPGRPC:
		var grpcOpts []otlploggrpc.Option
		if opts.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlploggrpc.WithEndpointURL(opts.Endpoint))
		}
		return otlploggrpc.New(ctx, grpcOpts...)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", opts.Exporter)
	}
}

// severity maps a slog level onto the OpenTelemetry severity scale.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelDebug:
		return minsev.SeverityTrace
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

func noop(context.Context) error { return nil }
