// Package refresh runs aggregation and writes the result through the price store,
// either on a timer or on demand.
package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"

	"goldprice/internal/aggregate"
	"goldprice/internal/logging"
	"goldprice/internal/metrics"
	"goldprice/internal/model"
)

// Triggers.
const (
	TriggerStartup = "startup"
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
)

// Run outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	OutcomeFailed  = "failed"
)

type Aggregator interface {
	Run(ctx context.Context) aggregate.Result
}

// Recorder persists one karat's latest value and history entry as a unit.
type Recorder interface {
	Record(ctx context.Context, rec model.GoldPriceRecord, capturedAt time.Time) error
}

type Result struct {
	RunID     string                `json:"runId"`
	Trigger   string                `json:"trigger"`
	Tier      string                `json:"tier"`
	Outcome   string                `json:"outcome"`
	Prices    []model.GoldPriceData `json:"prices"`
	Persisted int                   `json:"persisted"`
	Failed    []int                 `json:"failedKarats,omitempty"`
	StartedAt time.Time             `json:"startedAt"`
	Elapsed   time.Duration         `json:"-"`
}

// Refresher is safe for concurrent use. Overlapping runs both complete; the store
// upsert is idempotent and duplicate history rows are accepted.
type Refresher struct {
	agg Aggregator
	rec Recorder
	log *logging.Logger
	now func() time.Time
}

func New(agg Aggregator, rec Recorder, log *logging.Logger) *Refresher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Refresher{agg: agg, rec: rec, log: log, now: time.Now}
}

// Run aggregates once and persists every karat. A karat that fails to persist is
// logged and skipped; the others are still written.
func (r *Refresher) Run(ctx context.Context, trigger string) Result {
	res := Result{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: r.now().UTC(),
	}
	log := r.log.With("run_id", res.RunID, "trigger", trigger)

	agg := r.agg.Run(ctx)
	res.Tier = agg.Tier
	res.Prices = agg.Prices

	capturedAt := r.now().UTC()
	for _, p := range agg.Prices {
		if err := r.rec.Record(ctx, p.Record(), capturedAt); err != nil {
			log.Warn("persist failed", "karat", p.Karat, "error", err)
			res.Failed = append(res.Failed, p.Karat)
			continue
		}
		res.Persisted++
	}

	switch {
	case len(res.Failed) == 0:
		res.Outcome = OutcomeOK
	case res.Persisted == 0:
		res.Outcome = OutcomeFailed
	default:
		res.Outcome = OutcomePartial
	}
	res.Elapsed = time.Since(res.StartedAt)
	metrics.RecordRefresh(trigger, res.Outcome)

	log.Info("refresh finished",
		"tier", res.Tier,
		"outcome", res.Outcome,
		"karats", len(res.Prices),
		"persisted", res.Persisted,
		"estimated", agg.Estimated,
		"elapsed", res.Elapsed.String(),
	)
	return res
}
