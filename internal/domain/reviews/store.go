package reviews

import (
	"context"
	"errors"
	"fmt"

	"filmreview/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type Store interface {
	ListByFilm(ctx context.Context, filmID int64, offset, limit int) ([]Review, int, error)
	CountByFilm(ctx context.Context, filmID int64) (int, error)
	GetByKey(ctx context.Context, filmID, reviewerID int64) (*Review, error)
	GetFilm(ctx context.Context, filmID int64) (*Film, error)
	GetOwnedReview(ctx context.Context, filmID, reviewerID int64) (*OwnedReview, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	Insert(ctx context.Context, filmID, reviewerID int64) error
	Update(ctx context.Context, filmID, reviewerID int64, patch Patch) error
	Delete(ctx context.Context, filmID, reviewerID int64) (int64, error)
	UnassignedFilms(ctx context.Context, ownerID int64) ([]int64, error)
	ReviewerLoads(ctx context.Context, excludeUserID int64) ([]ReviewerLoad, error)
	FilmHasReviews(ctx context.Context, filmID int64) (bool, error)
}

// Repository is the Postgres implementation of Store.
type Repository struct {
	db dbx.Querier
}

func NewRepository(q dbx.Querier) *Repository {
	return &Repository{db: q}
}

var _ Store = (*Repository)(nil)

// pgError maps driver errors onto the package error kinds.
func pgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return fmt.Errorf("%s: %w", op, ErrConflict)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return &DataAccessError{Op: op, Err: fmt.Errorf("%w: %w", ErrRetryable, err)}
		}
	}
	return dataAccess(op, err)
}

func (r *Repository) ListByFilm(ctx context.Context, filmID int64, offset, limit int) ([]Review, int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE film_id = $1`, filmID).Scan(&total); err != nil {
		return nil, 0, pgError("count reviews", err)
	}

	rows, err := r.db.Query(ctx, `
        SELECT film_id, reviewer_id, completed::int, review_date, rating, review
        FROM reviews
        WHERE film_id = $1
        ORDER BY reviewer_id
        LIMIT $2 OFFSET $3
    `, filmID, limit, offset)
	if err != nil {
		return nil, 0, pgError("list reviews", err)
	}
	defer rows.Close()

	list := []Review{}
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, pgError("scan review", err)
		}
		list = append(list, FromRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, pgError("list reviews", err)
	}
	return list, total, nil
}

func scanRow(s pgx.Row) (Row, error) {
	var (
		row    Row
		date   pgtype.Date
		rating pgtype.Int4
		text   pgtype.Text
	)
	if err := s.Scan(&row.FilmID, &row.ReviewerID, &row.Completed, &date, &rating, &text); err != nil {
		return Row{}, err
	}
	row.ReviewDate.Time, row.ReviewDate.Valid = date.Time, date.Valid
	row.Rating.Int64, row.Rating.Valid = int64(rating.Int32), rating.Valid
	row.Review.String, row.Review.Valid = text.String, text.Valid
	return row, nil
}

func (r *Repository) CountByFilm(ctx context.Context, filmID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE film_id = $1`, filmID).Scan(&total)
	if err != nil {
		return 0, pgError("count reviews", err)
	}
	return total, nil
}

func (r *Repository) GetByKey(ctx context.Context, filmID, reviewerID int64) (*Review, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	row, err := scanRow(r.db.QueryRow(ctx, `
        SELECT film_id, reviewer_id, completed::int, review_date, rating, review
        FROM reviews
        WHERE film_id = $1 AND reviewer_id = $2
    `, filmID, reviewerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgError("get review", err)
	}
	review := FromRow(row)
	return &review, nil
}

func (r *Repository) GetFilm(ctx context.Context, filmID int64) (*Film, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var f Film
	err := r.db.QueryRow(ctx, `SELECT id, owner_id, private, title FROM films WHERE id = $1`, filmID).
		Scan(&f.ID, &f.OwnerID, &f.Private, &f.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgError("get film", err)
	}
	return &f, nil
}

// GetOwnedReview returns the review joined to its film's owner. A review whose
// film cannot be joined is reported as not found.
func (r *Repository) GetOwnedReview(ctx context.Context, filmID, reviewerID int64) (*OwnedReview, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o OwnedReview
	err := r.db.QueryRow(ctx, `
        SELECT f.owner_id, r.completed
        FROM films f
        JOIN reviews r ON r.film_id = f.id
        WHERE f.id = $1 AND r.reviewer_id = $2
    `, filmID, reviewerID).Scan(&o.OwnerID, &o.Completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, pgError("get owned review", err)
	}
	return &o, nil
}

func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, pgError("lookup user", err)
	}
	return exists, nil
}

func (r *Repository) Insert(ctx context.Context, filmID, reviewerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := r.db.Exec(ctx, `
        INSERT INTO reviews (film_id, reviewer_id, completed)
        VALUES ($1, $2, false)
    `, filmID, reviewerID)
	if err != nil {
		return pgError("insert review", err)
	}
	return nil
}

// Update applies patch in one statement; each optional column is guarded by a
// flag so absent fields keep their stored value.
func (r *Repository) Update(ctx context.Context, filmID, reviewerID int64, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	date, hasDate := patch.ReviewDate.Get()
	rating, hasRating := patch.Rating.Get()
	text, hasText := patch.Review.Get()

	tag, err := r.db.Exec(ctx, `
        UPDATE reviews SET
            completed   = $3,
            review_date = CASE WHEN $4::boolean THEN $5::date ELSE review_date END,
            rating      = CASE WHEN $6::boolean THEN $7::int ELSE rating END,
            review      = CASE WHEN $8::boolean THEN $9::text ELSE review END
        WHERE film_id = $1 AND reviewer_id = $2
    `, filmID, reviewerID, patch.Completed,
		hasDate, pgtype.Date{Time: date, Valid: hasDate},
		hasRating, pgtype.Int4{Int32: int32(rating), Valid: hasRating},
		hasText, pgtype.Text{String: text, Valid: hasText},
	)
	if err != nil {
		return pgError("update review", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a pending review and reports how many rows were removed.
// Completed reviews are never matched.
func (r *Repository) Delete(ctx context.Context, filmID, reviewerID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
        DELETE FROM reviews
        WHERE film_id = $1 AND reviewer_id = $2 AND completed = false
    `, filmID, reviewerID)
	if err != nil {
		return 0, pgError("delete review", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) UnassignedFilms(ctx context.Context, ownerID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `
        SELECT f.id
        FROM films f
        LEFT JOIN reviews r ON r.film_id = f.id
        WHERE f.owner_id = $1 AND f.private = false AND r.film_id IS NULL
        ORDER BY f.id
    `, ownerID)
	if err != nil {
		return nil, pgError("list unassigned films", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, pgError("list unassigned films", err)
	}
	return ids, nil
}

// ReviewerLoads lists every user except excludeUserID with the number of
// reviews they hold, least loaded first.
func (r *Repository) ReviewerLoads(ctx context.Context, excludeUserID int64) ([]ReviewerLoad, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := r.db.Query(ctx, `
        SELECT u.id, COUNT(r.film_id)
        FROM users u
        LEFT JOIN reviews r ON r.reviewer_id = u.id
        WHERE u.id <> $1
        GROUP BY u.id
        ORDER BY COUNT(r.film_id), u.id
    `, excludeUserID)
	if err != nil {
		return nil, pgError("reviewer loads", err)
	}
	defer rows.Close()

	var loads []ReviewerLoad
	for rows.Next() {
		var l ReviewerLoad
		if err := rows.Scan(&l.ReviewerID, &l.Count); err != nil {
			return nil, pgError("scan reviewer load", err)
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("reviewer loads", err)
	}
	return loads, nil
}

func (r *Repository) FilmHasReviews(ctx context.Context, filmID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviews WHERE film_id = $1)`, filmID).Scan(&exists)
	if err != nil {
		return false, pgError("check film reviews", err)
	}
	return exists, nil
}
