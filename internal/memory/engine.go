// Package memory wires the full evaluation pipeline: sanitize the
// utterance, gate on PII, extract candidates, classify risk, score, and
// route each candidate to auto-store, consent, or rejection.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumehq/recall/internal/events"
	"github.com/lumehq/recall/internal/extract"
	"github.com/lumehq/recall/internal/pii"
	"github.com/lumehq/recall/internal/policy"
	"github.com/lumehq/recall/internal/sanitize"
	"github.com/lumehq/recall/internal/score"
	"github.com/lumehq/recall/internal/store"
)

// Rejection reasons surfaced in EvalResult.
const (
	ReasonPII      = "pii"
	ReasonLowScore = "low_score"
	ReasonPolicy   = "policy"
)

// Rejection records why a value was not stored. The value is echoed back
// to the caller but never persisted or logged.
type Rejection struct {
	Reason string `json:"reason"`
	Value  string `json:"value"`
}

// EvalResult is the outcome of evaluating one utterance.
type EvalResult struct {
	Stored         []store.StoredMemory `json:"stored"`
	PendingConsent []store.Suggestion   `json:"pending_consent"`
	Rejected       []Rejection          `json:"rejected"`
}

// Config assembles an Engine.
type Config struct {
	Store            *store.Store
	Pipeline         *extract.Pipeline
	Sanitizer        *sanitize.Sanitizer
	Classifier       *policy.Classifier
	Scorer           *score.Scorer
	Events           *events.Log // optional
	Logger           *zap.Logger // optional
	Bands            policy.Bands
	ConsentRetention time.Duration
	Now              func() time.Time
}

// Engine evaluates utterances and manages the consent lifecycle.
type Engine struct {
	store      *store.Store
	pipeline   *extract.Pipeline
	sanitizer  *sanitize.Sanitizer
	classifier *policy.Classifier
	scorer     *score.Scorer
	events     *events.Log
	logger     *zap.Logger
	bands      policy.Bands
	retention  time.Duration
	now        func() time.Time
}

// New builds an Engine. Store and Pipeline are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("memory engine: store is required")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("memory engine: extraction pipeline is required")
	}
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = sanitize.New(sanitize.DefaultConfig())
	}
	if cfg.Classifier == nil {
		cfg.Classifier = policy.NewClassifier(policy.DefaultClassifierConfig())
	}
	if cfg.Scorer == nil {
		cfg.Scorer = score.New(score.DefaultWeights())
	}
	if cfg.Bands == (policy.Bands{}) {
		cfg.Bands = policy.DefaultBands()
	}
	if cfg.ConsentRetention <= 0 {
		cfg.ConsentRetention = 30 * 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:      cfg.Store,
		pipeline:   cfg.Pipeline,
		sanitizer:  cfg.Sanitizer,
		classifier: cfg.Classifier,
		scorer:     cfg.Scorer,
		events:     cfg.Events,
		logger:     cfg.Logger,
		bands:      cfg.Bands,
		retention:  cfg.ConsentRetention,
		now:        cfg.Now,
	}, nil
}

// EvaluateAndMaybeStore runs the full pipeline over one utterance.
// Utterances containing PII are discarded whole; everything else is
// evaluated candidate by candidate. Storage errors abort and propagate.
func (e *Engine) EvaluateAndMaybeStore(ctx context.Context, person, utterance string) (EvalResult, error) {
	var result EvalResult

	person = strings.TrimSpace(person)
	if person == "" {
		return result, fmt.Errorf("evaluate: person is required")
	}
	if strings.TrimSpace(utterance) == "" {
		return result, nil
	}

	clean, modified := e.sanitizer.Sanitize(utterance)
	if modified {
		e.logger.Debug("utterance sanitized", zap.String("person", person))
	}
	if clean == "" {
		return result, nil
	}

	if det := pii.Detect(clean); det.HasPII {
		result.Rejected = append(result.Rejected, Rejection{Reason: ReasonPII, Value: clean})
		e.emit(events.Record{Type: events.TypeReject, Person: person, Reason: ReasonPII})
		e.logger.Info("utterance rejected",
			zap.String("person", person),
			zap.String("reason", ReasonPII),
			zap.Int("matches", len(det.Matches)))
		return result, nil
	}

	candidates := e.pipeline.Extract(ctx, person, clean)
	for _, c := range candidates {
		risk := e.classifier.Classify(c.Value, c.Type)
		existing := e.store.ListByPerson(person)
		sc := e.scorer.Score(c, existing)

		switch e.bands.Decide(sc, risk) {
		case policy.DecisionAutoStore:
			m, err := e.store.Upsert(ctx, person, c.Type, c.Key, c.Value, c.Confidence, risk, policy.DefaultTTL(c.Type))
			if err != nil {
				return result, fmt.Errorf("store candidate %q: %w", c.Key, err)
			}
			result.Stored = append(result.Stored, m)
			e.emit(events.Record{Type: events.TypeSave, Person: person, Key: c.Key})
			e.logger.Info("memory stored",
				zap.String("person", person),
				zap.String("key", c.Key),
				zap.String("type", string(c.Type)),
				zap.Float64("score", sc))

		case policy.DecisionAskConsent:
			sug, err := e.store.AddSuggestion(ctx, c, risk, sc)
			if err != nil {
				return result, fmt.Errorf("suggest candidate %q: %w", c.Key, err)
			}
			result.PendingConsent = append(result.PendingConsent, sug)
			e.emit(events.Record{Type: events.TypeAsk, Person: person, Key: c.Key})
			e.logger.Info("consent requested",
				zap.String("person", person),
				zap.String("key", c.Key),
				zap.Float64("score", sc))

		case policy.DecisionReject:
			reason := ReasonLowScore
			if risk == policy.RiskHigh {
				reason = ReasonPolicy
			}
			result.Rejected = append(result.Rejected, Rejection{Reason: reason, Value: c.Value})
			e.emit(events.Record{Type: events.TypeReject, Person: person, Key: c.Key, Reason: reason})
			e.logger.Debug("candidate rejected",
				zap.String("person", person),
				zap.String("key", c.Key),
				zap.String("reason", reason))
		}
	}
	return result, nil
}

// Confirm promotes a pending suggestion into the active store. Returns
// the stored memory and whether this call performed the promotion.
func (e *Engine) Confirm(ctx context.Context, id string) (*store.StoredMemory, bool, error) {
	sug, err := e.store.GetSuggestion(id)
	if err != nil {
		return nil, false, err
	}
	m, promoted, err := e.store.ConfirmSuggestion(ctx, id, policy.DefaultTTL(sug.Candidate.Type))
	if err != nil {
		return nil, false, err
	}
	if promoted {
		e.emit(events.Record{Type: events.TypeSave, Person: sug.Person, Key: sug.Candidate.Key, Reason: "consent"})
		e.logger.Info("suggestion confirmed", zap.String("person", sug.Person), zap.String("key", sug.Candidate.Key))
	}
	return m, promoted, nil
}

// Reject declines a pending suggestion. Returns whether this call
// changed its state.
func (e *Engine) Reject(ctx context.Context, id string) (bool, error) {
	sug, err := e.store.GetSuggestion(id)
	if err != nil {
		return false, err
	}
	rejected, err := e.store.RejectSuggestion(ctx, id)
	if err != nil {
		return false, err
	}
	if rejected {
		e.emit(events.Record{Type: events.TypeReject, Person: sug.Person, Key: sug.Candidate.Key, Reason: "consent_declined"})
		e.logger.Info("suggestion rejected", zap.String("person", sug.Person), zap.String("key", sug.Candidate.Key))
	}
	return rejected, nil
}

// Sweep removes expired memories and discards suggestions past the
// consent retention window. Returns the number of expired memories.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	removed, err := e.store.ExpireSweep(ctx)
	if err != nil {
		e.emit(events.Record{Type: events.TypeError, Reason: "sweep", Detail: err.Error()})
		return 0, err
	}
	// Zero-count runs are recorded too, so downstream statistics see an
	// uninterrupted per-run series.
	e.emit(events.Record{Type: events.TypeExpire, Count: removed})
	e.logger.Info("expired memories swept", zap.Int("removed", removed))

	pruned, err := e.store.PruneSuggestions(ctx, e.retention)
	if err != nil {
		e.emit(events.Record{Type: events.TypeError, Reason: "suggestion_prune", Detail: err.Error()})
		return removed, err
	}
	if pruned > 0 {
		e.logger.Info("stale suggestions pruned", zap.Int("pruned", pruned))
	}
	return removed, nil
}

// Store exposes the underlying store for read paths.
func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) emit(rec events.Record) {
	if err := e.events.Append(rec); err != nil {
		e.logger.Warn("event log append failed", zap.Error(err))
	}
}
