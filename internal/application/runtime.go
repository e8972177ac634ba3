package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/station-engine/internal/events"
	"github.com/example/station-engine/internal/metrics"
	"github.com/example/station-engine/internal/persistence"
	"github.com/example/station-engine/internal/telemetry"
)

// Runtime bundles the collaborators shared by every service. Zero fields
// get working defaults.
type Runtime struct {
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Retry       persistence.RetryConfig
	Tracer      trace.Tracer
}

func (r Runtime) withDefaults() Runtime {
	if r.IDGenerator == nil {
		r.IDGenerator = func() string { return "" }
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	r.Logger = defaultLogger(r.Logger)
	if r.Events == nil {
		r.Events = events.Nop
	}
	if r.Retry.MaxRetries == 0 {
		onConflict := r.Retry.OnConflict
		r.Retry = persistence.DefaultRetryConfig()
		r.Retry.OnConflict = onConflict
	}
	if r.Tracer == nil {
		r.Tracer = telemetry.Tracer()
	}
	return r
}

// retry returns the retry settings for entity, counting every conflict.
func (r Runtime) retry(ctx context.Context, logger *slog.Logger, entity, id string) persistence.RetryConfig {
	cfg := r.Retry
	next := cfg.OnConflict
	cfg.OnConflict = func(attempt int, wait time.Duration) {
		r.Metrics.Conflict(entity)
		logger.DebugContext(ctx, "version conflict, retrying",
			"entity", entity, "entity_id", id, "attempt", attempt, "wait", wait)
		if next != nil {
			next(attempt, wait)
		}
	}
	return cfg
}

// emit publishes evs. Delivery failures are logged; the state change they
// describe is already committed.
func (r Runtime) emit(ctx context.Context, logger *slog.Logger, evs ...events.Event) {
	for _, ev := range evs {
		if err := r.Events.Publish(ctx, ev); err != nil {
			logger.WarnContext(ctx, "failed to publish event", "event", ev.Kind, "error", err)
		}
	}
}

// operation tracks one service call across tracing, metrics and logs.
type operation struct {
	name    string
	started time.Time
	span    trace.Span
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (r Runtime) begin(ctx context.Context, service, name string, attrs ...any) (context.Context, *operation) {
	ctx, span := r.Tracer.Start(ctx, service+"."+name, trace.WithAttributes(spanAttributes(attrs)...))
	return ctx, &operation{
		name:    name,
		started: time.Now(),
		span:    span,
		logger:  serviceLogger(ctx, r.Logger, service, name, attrs...),
		metrics: r.Metrics,
	}
}

// finish closes the span and records the outcome. Failures are logged with
// failMsg, rejections at warn level and everything else at error level.
func (o *operation) finish(ctx context.Context, err error, failMsg string) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, outcome)

		level := slog.LevelError
		switch outcome {
		case "validation", "precondition", "not_found", "already_exists", "canceled":
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, failMsg, "error", err, "error_kind", outcome)
	}
	o.metrics.ObserveOperation(o.name, outcome, time.Since(o.started))
	o.span.End()
}

func spanAttributes(pairs []any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		out = append(out, attribute.String(key, fmt.Sprint(pairs[i+1])))
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateParams runs the struct tags of params and returns the field
// failures keyed by their JSON name.
func validateParams(params any) *ValidationError {
	vErr := &ValidationError{}
	err := validate.Struct(params)
	if err == nil {
		return vErr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("_", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	return vErr
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must have at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	default:
		return "is invalid"
	}
}

// checkAmount records a hand check for money fields, which carry no tags.
func checkAmount(vErr *ValidationError, field string, amount decimal.Decimal) {
	if amount.IsNegative() {
		vErr.add(field, "must not be negative")
	}
}
