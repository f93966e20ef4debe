// Package invitations implements the review invitation lifecycle and the
// balanced assignment of unassigned films to reviewers.
package invitations

import (
	"context"
	"errors"

	"filmreview/internal/domain/reviews"
	"filmreview/internal/params"

	"go.uber.org/zap"
)

// Manager owns creation, completion and deletion of review invitations.
type Manager struct {
	store    reviews.Store
	pageSize int
	logger   *zap.SugaredLogger
}

func NewManager(store reviews.Store, pageSize int, logger *zap.SugaredLogger) *Manager {
	if pageSize < 1 {
		pageSize = 10
	}
	return &Manager{store: store, pageSize: pageSize, logger: logger}
}

// Page is one page of a film's reviews.
type Page struct {
	Reviews    []reviews.Review  `json:"reviews"`
	Pagination params.Pagination `json:"pagination"`
}

// List returns page of filmID's reviews using the configured page size.
// Pages below 1 are treated as the first page.
func (m *Manager) List(ctx context.Context, filmID int64, page int) (*Page, error) {
	p := params.ForPage(page, m.pageSize)

	list, total, err := m.store.ListByFilm(ctx, filmID, p.Offset, p.Limit)
	if err != nil {
		return nil, err
	}
	p.ComputeMeta(total)

	return &Page{Reviews: list, Pagination: p}, nil
}

func (m *Manager) Count(ctx context.Context, filmID int64) (int, error) {
	return m.store.CountByFilm(ctx, filmID)
}

func (m *Manager) Get(ctx context.Context, filmID, reviewerID int64) (*reviews.Review, error) {
	return m.store.GetByKey(ctx, filmID, reviewerID)
}

// Issue invites reviewerID to review filmID on behalf of requesterID.
func (m *Manager) Issue(ctx context.Context, reviewerID, filmID, requesterID int64) (*reviews.Review, error) {
	return m.issue(ctx, m.store, reviewerID, filmID, requesterID)
}

// issue runs the invitation checks against store, which may be scoped to a
// transaction by the caller.
func (m *Manager) issue(ctx context.Context, store reviews.Store, reviewerID, filmID, requesterID int64) (*reviews.Review, error) {
	film, err := store.GetFilm(ctx, filmID)
	if err != nil {
		return nil, err
	}
	if film.OwnerID != requesterID {
		return nil, reviews.ErrForbidden
	}
	// Private films are hidden from this path, not merely locked.
	if film.Private {
		return nil, reviews.ErrNotFound
	}

	exists, err := store.UserExists(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, reviews.ErrConflict
	}

	if err := store.Insert(ctx, filmID, reviewerID); err != nil {
		return nil, err
	}

	m.logger.Infow("review invitation issued", "film_id", filmID, "reviewer_id", reviewerID, "owner_id", requesterID)
	review := reviews.NewInvitation(reviewerID, filmID, false)
	return &review, nil
}

// Delete revokes a pending invitation. Only the film owner may do so and
// completed reviews are never removed.
func (m *Manager) Delete(ctx context.Context, filmID, reviewerID, requesterID int64) error {
	owned, err := m.store.GetOwnedReview(ctx, filmID, reviewerID)
	if err != nil {
		return err
	}
	if owned.OwnerID != requesterID {
		return reviews.ErrForbidden
	}
	if owned.Completed {
		return reviews.ErrAlreadyCompleted
	}

	n, err := m.store.Delete(ctx, filmID, reviewerID)
	if err != nil {
		return err
	}
	if n == 0 {
		// Completed or removed after the check above.
		current, err := m.store.GetByKey(ctx, filmID, reviewerID)
		if err != nil {
			return err
		}
		if current.Completed {
			return reviews.ErrAlreadyCompleted
		}
		return reviews.ErrNotFound
	}

	m.logger.Infow("review invitation deleted", "film_id", filmID, "reviewer_id", reviewerID, "owner_id", requesterID)
	return nil
}

// Update applies patch to the review of reviewerID on filmID. Only the
// reviewer named on the review may update it.
func (m *Manager) Update(ctx context.Context, patch reviews.Patch, filmID, reviewerID, callerID int64) (*reviews.Review, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	current, err := m.store.GetByKey(ctx, filmID, reviewerID)
	if err != nil {
		return nil, err
	}
	if current.ReviewerID != callerID {
		return nil, reviews.ErrForbidden
	}

	if err := m.store.Update(ctx, filmID, reviewerID, patch); err != nil {
		return nil, err
	}

	updated, err := m.store.GetByKey(ctx, filmID, reviewerID)
	if err != nil {
		if errors.Is(err, reviews.ErrNotFound) {
			m.logger.Warnw("review vanished after update", "film_id", filmID, "reviewer_id", reviewerID)
		}
		return nil, err
	}

	m.logger.Infow("review updated", "film_id", filmID, "reviewer_id", reviewerID, "completed", updated.Completed)
	return updated, nil
}
