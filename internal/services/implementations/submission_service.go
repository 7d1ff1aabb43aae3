package implementations

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"whatisyourcolor/internal/domain/color"
	"whatisyourcolor/internal/observability"
)

// SubmissionService derives the colour for a label and forwards it to the form
// unless the label is already present in a freshly refreshed snapshot.
type SubmissionService struct {
	snapshots color.SnapshotProvider
	sink      color.SubmissionSink
	namer     color.Namer
	policy    color.DuplicatePolicy
	logger    *observability.Logger

	// Observability
	tracer         trace.Tracer
	attemptCounter metric.Int64Counter
}

// NewSubmissionService creates a new submission gate
func NewSubmissionService(
	snapshots color.SnapshotProvider,
	sink color.SubmissionSink,
	namer color.Namer,
	policy color.DuplicatePolicy,
	logger *observability.Logger,
) *SubmissionService {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if policy == "" {
		policy = color.DuplicateShow
	}

	tracer := otel.Tracer("whatisyourcolor/service/submission")
	meter := otel.Meter("whatisyourcolor/service/submission")

	attemptCounter, err := meter.Int64Counter(
		"submission.attempts.total",
		metric.WithDescription("Total number of submission attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		attemptCounter = nil
	}

	return &SubmissionService{
		snapshots:      snapshots,
		sink:           sink,
		namer:          namer,
		policy:         policy,
		logger:         logger.Component("submission"),
		tracer:         tracer,
		attemptCounter: attemptCounter,
	}
}

// Policy returns the configured duplicate policy
func (s *SubmissionService) Policy() color.DuplicatePolicy {
	return s.policy
}

// Preview derives the candidate for label without submitting it
func (s *SubmissionService) Preview(label string) color.Candidate {
	candidate := color.NewCandidate(label)
	if s.namer != nil {
		candidate.Name = s.namer.Name(candidate.Color)
	}
	return candidate
}

// AttemptSubmit runs one submit cycle for label. An empty label returns
// ErrEmptyLabel and nothing is forwarded. Sink failures are logged and the
// result still reports the submission as made.
func (s *SubmissionService) AttemptSubmit(ctx context.Context, label string) (color.Result, error) {
	ctx, span := s.tracer.Start(ctx, "AttemptSubmit",
		trace.WithAttributes(attribute.Int("label.length", len(label))),
	)
	defer span.End()

	if label == "" {
		s.recordAttempt(ctx, "empty")
		span.SetStatus(codes.Error, "empty label")
		return color.Result{Reason: color.ReasonEmpty}, color.ErrEmptyLabel
	}

	candidate := s.Preview(label)
	span.SetAttributes(attribute.String("color.code", candidate.Color))

	snapshot, err := s.snapshots.Refresh(ctx)
	if err != nil {
		// Best effort: check against whatever is visible
		s.logger.Warn(ctx).Err(err).Msg("Refresh before submit failed, using current snapshot")
		snapshot = s.snapshots.Current()
	}

	if snapshot.HasLabel(label) {
		s.recordAttempt(ctx, "duplicate")
		span.SetAttributes(attribute.Bool("submission.duplicate", true))
		s.logger.Info(ctx).
			Str("color", candidate.Color).
			Str("policy", string(s.policy)).
			Msg("Duplicate label, submission skipped")

		return color.Result{
			Candidate: candidate,
			Duplicate: true,
			Display:   s.policy == color.DuplicateShow,
			Reason:    color.ReasonDuplicate,
		}, nil
	}

	if err := s.sink.Submit(ctx, label, candidate.Color); err != nil {
		span.RecordError(err)
		s.logger.Error(ctx).Err(err).Str("color", candidate.Color).Msg("Failed to forward submission")
	}

	s.recordAttempt(ctx, "submitted")
	span.SetStatus(codes.Ok, "")

	return color.Result{
		Candidate: candidate,
		Submitted: true,
		Display:   true,
	}, nil
}

func (s *SubmissionService) recordAttempt(ctx context.Context, outcome string) {
	if s.attemptCounter != nil {
		s.attemptCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
