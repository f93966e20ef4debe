package invitations

import (
	"context"
	"errors"

	"filmreview/internal/domain/reviews"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TxRunner runs fn inside a store transaction.
type TxRunner interface {
	WithReviewsTx(ctx context.Context, fn func(reviews.Store) error) error
}

type AssignerConfig struct {
	Workers     int // films assigned in parallel
	MaxAttempts int // transaction attempts per film
}

// Assigner distributes an owner's unassigned films to the least loaded
// reviewers. Each film is placed in its own transaction that re-reads the
// loads and inserts the invitation, retried on store conflicts.
type Assigner struct {
	store   reviews.Store
	tx      TxRunner
	manager *Manager
	cfg     AssignerConfig
	logger  *zap.SugaredLogger
}

func NewAssigner(store reviews.Store, tx TxRunner, manager *Manager, cfg AssignerConfig, logger *zap.SugaredLogger) *Assigner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Assigner{store: store, tx: tx, manager: manager, cfg: cfg, logger: logger}
}

type outcome struct {
	filmID     int64
	reviewerID int64
	skipped    bool
	err        error
}

// AssignBalanced assigns every public film of ownerID that has no review to
// the reviewer holding the fewest reviews. A failure listing the films aborts
// the run; failures on single films are collected in the report while the
// other films proceed.
func (a *Assigner) AssignBalanced(ctx context.Context, ownerID int64) (*reviews.AssignmentReport, error) {
	runID := uuid.NewString()

	films, err := a.store.UnassignedFilms(ctx, ownerID)
	if err != nil {
		a.logger.Errorw("balanced assignment aborted", "run_id", runID, "owner_id", ownerID, "error", err)
		return nil, err
	}

	outcomes := make([]outcome, len(films))
	var g errgroup.Group
	g.SetLimit(a.cfg.Workers)
	for i, filmID := range films {
		g.Go(func() error {
			outcomes[i] = a.assignOne(ctx, runID, filmID, ownerID)
			return nil
		})
	}
	_ = g.Wait()

	report := &reviews.AssignmentReport{
		RunID:    runID,
		Assigned: []reviews.Assignment{},
		Skipped:  []int64{},
		Failed:   []reviews.AssignmentFailure{},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			report.Failed = append(report.Failed, reviews.AssignmentFailure{
				FilmID: o.filmID,
				Kind:   reviews.Kind(o.err),
				Error:  o.err.Error(),
			})
		case o.skipped:
			report.Skipped = append(report.Skipped, o.filmID)
		default:
			report.Assigned = append(report.Assigned, reviews.Assignment{FilmID: o.filmID, ReviewerID: o.reviewerID})
		}
	}

	a.logger.Infow("balanced assignment finished",
		"run_id", runID,
		"owner_id", ownerID,
		"films", len(films),
		"assigned", len(report.Assigned),
		"already_assigned", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

func (a *Assigner) assignOne(ctx context.Context, runID string, filmID, ownerID int64) outcome {
	for attempt := 1; ; attempt++ {
		o := outcome{filmID: filmID}
		err := a.tx.WithReviewsTx(ctx, func(s reviews.Store) error {
			has, err := s.FilmHasReviews(ctx, filmID)
			if err != nil {
				return err
			}
			if has {
				o.skipped = true
				return nil
			}

			loads, err := s.ReviewerLoads(ctx, ownerID)
			if err != nil {
				return err
			}
			pick, ok := leastLoaded(loads)
			if !ok {
				return reviews.ErrNoReviewerAvailable
			}

			if _, err := a.manager.issue(ctx, s, pick.ReviewerID, filmID, ownerID); err != nil {
				return err
			}
			o.reviewerID = pick.ReviewerID
			return nil
		})
		if err == nil {
			if o.skipped {
				a.logger.Infow("film assigned concurrently, skipping", "run_id", runID, "film_id", filmID)
			}
			return o
		}

		if attempt < a.cfg.MaxAttempts && ctx.Err() == nil && retryable(err) {
			a.logger.Warnw("assignment attempt failed, retrying",
				"run_id", runID, "film_id", filmID, "attempt", attempt, "error", err)
			continue
		}

		a.logger.Errorw("assignment failed", "run_id", runID, "film_id", filmID, "attempt", attempt, "error", err)
		o.err = err
		return o
	}
}

func retryable(err error) bool {
	return errors.Is(err, reviews.ErrRetryable) || errors.Is(err, reviews.ErrConflict)
}

// leastLoaded returns the load with the smallest count; ties keep the first.
func leastLoaded(loads []reviews.ReviewerLoad) (reviews.ReviewerLoad, bool) {
	if len(loads) == 0 {
		return reviews.ReviewerLoad{}, false
	}
	best := loads[0]
	for _, l := range loads[1:] {
		if l.Count < best.Count {
			best = l
		}
	}
	return best, true
}
