package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/atrium/pkg/contextkeys"
)

// Log formats accepted by NewLogger
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger creates a logrus logger writing to out (stdout when nil)
func NewLogger(level, format string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case "", FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	case FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	if err := SetLevel(logger, level); err != nil {
		return nil, err
	}
	return logger, nil
}

// SetLevel parses level and applies it; an empty level means info
func SetLevel(logger *logrus.Logger, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	return nil
}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextkeys.LoggerKey, logger)
}

// FromContext returns the logger stored in ctx, or fallback, enriched with the request id,
// user id and trace ids found in ctx
func FromContext(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	logger, ok := ctx.Value(contextkeys.LoggerKey).(logrus.FieldLogger)
	if !ok {
		logger = fallback
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fields := logrus.Fields{}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		fields["user_id"] = id
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		fields["trace_id"] = span.SpanContext().TraceID().String()
		fields["span_id"] = span.SpanContext().SpanID().String()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}
