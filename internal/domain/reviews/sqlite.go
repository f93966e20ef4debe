package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteRepository implements Store on an embedded SQLite database. It backs
// local development and the test suites.
type SQLiteRepository struct {
	db sqlx.ExtContext
}

func NewSQLiteRepository(q sqlx.ExtContext) *SQLiteRepository {
	return &SQLiteRepository{db: q}
}

var _ Store = (*SQLiteRepository)(nil)

type sqliteRow struct {
	FilmID     int64          `db:"film_id"`
	ReviewerID int64          `db:"reviewer_id"`
	Completed  int64          `db:"completed"`
	ReviewDate sql.NullString `db:"review_date"`
	Rating     sql.NullInt64  `db:"rating"`
	Review     sql.NullString `db:"review"`
}

func (r sqliteRow) toRow() (Row, error) {
	row := Row{
		FilmID:     r.FilmID,
		ReviewerID: r.ReviewerID,
		Completed:  r.Completed,
		Rating:     r.Rating,
		Review:     r.Review,
	}
	if r.ReviewDate.Valid {
		t, err := time.Parse(DateLayout, r.ReviewDate.String)
		if err != nil {
			return Row{}, fmt.Errorf("parse review date %q: %w", r.ReviewDate.String, err)
		}
		row.ReviewDate = sql.NullTime{Time: t, Valid: true}
	}
	return row, nil
}

// IsRetryableSQLiteError reports whether err is a busy or locked database.
func IsRetryableSQLiteError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return true
	}
	return false
}

func sqliteError(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3lib.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", op, ErrConflict)
		}
		if IsRetryableSQLiteError(err) {
			return &DataAccessError{Op: op, Err: fmt.Errorf("%w: %w", ErrRetryable, err)}
		}
	}
	return dataAccess(op, err)
}

const sqliteReviewColumns = `film_id, reviewer_id, completed, review_date, rating, review`

func (s *SQLiteRepository) ListByFilm(ctx context.Context, filmID int64, offset, limit int) ([]Review, int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, `SELECT COUNT(*) FROM reviews WHERE film_id = ?`, filmID); err != nil {
		return nil, 0, sqliteError("count reviews", err)
	}

	var rows []sqliteRow
	err := sqlx.SelectContext(ctx, s.db, &rows, `
        SELECT `+sqliteReviewColumns+`
        FROM reviews
        WHERE film_id = ?
        ORDER BY reviewer_id
        LIMIT ? OFFSET ?
    `, filmID, limit, offset)
	if err != nil {
		return nil, 0, sqliteError("list reviews", err)
	}

	list := make([]Review, 0, len(rows))
	for _, r := range rows {
		row, err := r.toRow()
		if err != nil {
			return nil, 0, dataAccess("list reviews", err)
		}
		list = append(list, FromRow(row))
	}
	return list, total, nil
}

func (s *SQLiteRepository) CountByFilm(ctx context.Context, filmID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, `SELECT COUNT(*) FROM reviews WHERE film_id = ?`, filmID); err != nil {
		return 0, sqliteError("count reviews", err)
	}
	return total, nil
}

func (s *SQLiteRepository) GetByKey(ctx context.Context, filmID, reviewerID int64) (*Review, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var r sqliteRow
	err := sqlx.GetContext(ctx, s.db, &r, `
        SELECT `+sqliteReviewColumns+`
        FROM reviews
        WHERE film_id = ? AND reviewer_id = ?
    `, filmID, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteError("get review", err)
	}
	row, err := r.toRow()
	if err != nil {
		return nil, dataAccess("get review", err)
	}
	review := FromRow(row)
	return &review, nil
}

func (s *SQLiteRepository) GetFilm(ctx context.Context, filmID int64) (*Film, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var f Film
	err := sqlx.GetContext(ctx, s.db, &f, `SELECT id, owner_id, private, title FROM films WHERE id = ?`, filmID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteError("get film", err)
	}
	return &f, nil
}

func (s *SQLiteRepository) GetOwnedReview(ctx context.Context, filmID, reviewerID int64) (*OwnedReview, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var o OwnedReview
	err := s.db.QueryRowxContext(ctx, `
        SELECT f.owner_id, r.completed
        FROM films f
        JOIN reviews r ON r.film_id = f.id
        WHERE f.id = ? AND r.reviewer_id = ?
    `, filmID, reviewerID).Scan(&o.OwnerID, &o.Completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, sqliteError("get owned review", err)
	}
	return &o, nil
}

func (s *SQLiteRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	if err := sqlx.GetContext(ctx, s.db, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID); err != nil {
		return false, sqliteError("lookup user", err)
	}
	return exists, nil
}

func (s *SQLiteRepository) Insert(ctx context.Context, filmID, reviewerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO reviews (film_id, reviewer_id, completed)
        VALUES (?, ?, 0)
    `, filmID, reviewerID)
	if err != nil {
		return sqliteError("insert review", err)
	}
	return nil
}

func (s *SQLiteRepository) Update(ctx context.Context, filmID, reviewerID int64, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var dateArg, ratingArg, textArg any
	date, hasDate := patch.ReviewDate.Get()
	if hasDate {
		dateArg = date.Format(DateLayout)
	}
	rating, hasRating := patch.Rating.Get()
	if hasRating {
		ratingArg = rating
	}
	text, hasText := patch.Review.Get()
	if hasText {
		textArg = text
	}

	res, err := s.db.ExecContext(ctx, `
        UPDATE reviews SET
            completed   = ?,
            review_date = CASE WHEN ? THEN ? ELSE review_date END,
            rating      = CASE WHEN ? THEN ? ELSE rating END,
            review      = CASE WHEN ? THEN ? ELSE review END
        WHERE film_id = ? AND reviewer_id = ?
    `, boolToInt(patch.Completed),
		boolToInt(hasDate), dateArg,
		boolToInt(hasRating), ratingArg,
		boolToInt(hasText), textArg,
		filmID, reviewerID,
	)
	if err != nil {
		return sqliteError("update review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dataAccess("update review", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteRepository) Delete(ctx context.Context, filmID, reviewerID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
        DELETE FROM reviews
        WHERE film_id = ? AND reviewer_id = ? AND completed = 0
    `, filmID, reviewerID)
	if err != nil {
		return 0, sqliteError("delete review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dataAccess("delete review", err)
	}
	return n, nil
}

func (s *SQLiteRepository) UnassignedFilms(ctx context.Context, ownerID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var ids []int64
	err := sqlx.SelectContext(ctx, s.db, &ids, `
        SELECT f.id
        FROM films f
        LEFT JOIN reviews r ON r.film_id = f.id
        WHERE f.owner_id = ? AND f.private = 0 AND r.film_id IS NULL
        ORDER BY f.id
    `, ownerID)
	if err != nil {
		return nil, sqliteError("list unassigned films", err)
	}
	return ids, nil
}

func (s *SQLiteRepository) ReviewerLoads(ctx context.Context, excludeUserID int64) ([]ReviewerLoad, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var loads []ReviewerLoad
	err := sqlx.SelectContext(ctx, s.db, &loads, `
        SELECT u.id AS reviewer_id, COUNT(r.film_id) AS review_count
        FROM users u
        LEFT JOIN reviews r ON r.reviewer_id = u.id
        WHERE u.id <> ?
        GROUP BY u.id
        ORDER BY review_count, u.id
    `, excludeUserID)
	if err != nil {
		return nil, sqliteError("reviewer loads", err)
	}
	return loads, nil
}

func (s *SQLiteRepository) FilmHasReviews(ctx context.Context, filmID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	if err := sqlx.GetContext(ctx, s.db, &exists, `SELECT EXISTS (SELECT 1 FROM reviews WHERE film_id = ?)`, filmID); err != nil {
		return false, sqliteError("check film reviews", err)
	}
	return exists, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
