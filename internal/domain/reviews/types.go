package reviews

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrForbidden           = errors.New("operation not allowed for this user")
	ErrConflict            = errors.New("resource already exists or is referenced incorrectly")
	ErrAlreadyCompleted    = errors.New("review is already completed")
	ErrNoReviewerAvailable = errors.New("no reviewer available for assignment")
	ErrInvalidPatch        = errors.New("invalid review update")
	// ErrRetryable marks store failures that are safe to retry as a whole
	// transaction (serialization failures, busy databases).
	ErrRetryable         = errors.New("transient store conflict")
	QueryTimeoutDuration = time.Second * 5
)

// DateLayout is the wire and storage format of review dates.
const DateLayout = "2006-01-02"

const (
	MinRating       = 1
	MaxRating       = 10
	MaxReviewLength = 1000
)

// DataAccessError wraps a failure of the underlying store.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error { return e.Err }

func dataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	var dae *DataAccessError
	if errors.As(err, &dae) {
		return err
	}
	return &DataAccessError{Op: op, Err: err}
}

// Kind returns a stable category for err, used by transports and reports.
func Kind(err error) string {
	var dae *DataAccessError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNoReviewerAvailable):
		return "no_reviewer_available"
	case errors.Is(err, ErrInvalidPatch):
		return "invalid"
	case errors.As(err, &dae):
		return "data_access"
	default:
		return "internal"
	}
}

// Review is one reviewer-to-film invitation.
type Review struct {
	FilmID     int64      `json:"film_id"`
	ReviewerID int64      `json:"reviewer_id"`
	Completed  bool       `json:"completed"`
	ReviewDate *time.Time `json:"review_date,omitempty"`
	Rating     *int       `json:"rating,omitempty"`
	Review     *string    `json:"review,omitempty"`
}

// Row is the stored shape of a review. Completed keeps the integer
// representation the store returns.
type Row struct {
	FilmID     int64
	ReviewerID int64
	Completed  int64
	ReviewDate sql.NullTime
	Rating     sql.NullInt64
	Review     sql.NullString
}

// FromRow builds a Review from a stored row. Unset columns stay nil.
func FromRow(row Row) Review {
	r := Review{
		FilmID:     row.FilmID,
		ReviewerID: row.ReviewerID,
		Completed:  row.Completed == 1,
	}
	if row.ReviewDate.Valid {
		d := row.ReviewDate.Time
		r.ReviewDate = &d
	}
	if row.Rating.Valid {
		v := int(row.Rating.Int64)
		r.Rating = &v
	}
	if row.Review.Valid {
		v := row.Review.String
		r.Review = &v
	}
	return r
}

// NewInvitation returns a freshly issued review with no optional fields.
func NewInvitation(reviewerID, filmID int64, completed bool) Review {
	return Review{
		FilmID:     filmID,
		ReviewerID: reviewerID,
		Completed:  completed,
	}
}

// Optional distinguishes "leave unchanged" (zero value) from "set to value".
type Optional[T any] struct {
	value T
	set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

func (o Optional[T]) IsSet() bool { return o.set }

// Patch is a partial update of a review. Completed is always written.
type Patch struct {
	Completed  bool
	ReviewDate Optional[time.Time]
	Rating     Optional[int]
	Review     Optional[string]
}

// Validate rejects ratings outside MinRating..MaxRating and review text
// longer than MaxReviewLength runes.
func (p Patch) Validate() error {
	if v, ok := p.Rating.Get(); ok && (v < MinRating || v > MaxRating) {
		return fmt.Errorf("%w: rating %d outside %d..%d", ErrInvalidPatch, v, MinRating, MaxRating)
	}
	if v, ok := p.Review.Get(); ok && utf8.RuneCountInString(v) > MaxReviewLength {
		return fmt.Errorf("%w: review longer than %d characters", ErrInvalidPatch, MaxReviewLength)
	}
	return nil
}

// Film is the subset of a film the review subsystem consults.
type Film struct {
	ID      int64  `json:"id" db:"id"`
	OwnerID int64  `json:"owner_id" db:"owner_id"`
	Private bool   `json:"private" db:"private"`
	Title   string `json:"title" db:"title"`
}

// ReviewerLoad is the number of reviews currently held by a reviewer.
type ReviewerLoad struct {
	ReviewerID int64 `json:"reviewer_id" db:"reviewer_id"`
	Count      int   `json:"count" db:"review_count"`
}

// OwnedReview is a review joined to the owner of its film.
type OwnedReview struct {
	OwnerID   int64
	Completed bool
}

// Assignment is one reviewer picked for one film by the balanced assigner.
type Assignment struct {
	FilmID     int64 `json:"film_id"`
	ReviewerID int64 `json:"reviewer_id"`
}

// AssignmentFailure records a film the assigner could not place.
type AssignmentFailure struct {
	FilmID int64  `json:"film_id"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// AssignmentReport is the full outcome of one balanced assignment run.
type AssignmentReport struct {
	RunID    string              `json:"run_id"`
	Assigned []Assignment        `json:"assigned"`
	Skipped  []int64             `json:"already_assigned"`
	Failed   []AssignmentFailure `json:"failed"`
}
