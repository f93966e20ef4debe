package reviews_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"filmreview/internal/db"
	"filmreview/internal/domain/reviews"

	"github.com/jmoiron/sqlx"
)

func openTempStore(t *testing.T) (*reviews.SQLiteRepository, *sqlx.DB) {
	t.Helper()

	sqlDB, err := db.OpenSQLite(filepath.Join(t.TempDir(), "reviews.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return reviews.NewSQLiteRepository(sqlDB), sqlDB
}

func mustExec(t *testing.T, sqlDB *sqlx.DB, query string, args ...any) {
	t.Helper()
	if _, err := sqlDB.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// seed creates users 1..4 and films owned by user 1: film 10 public,
// film 11 public, film 12 private.
func seed(t *testing.T, sqlDB *sqlx.DB) {
	t.Helper()
	for id := 1; id <= 4; id++ {
		mustExec(t, sqlDB, `INSERT INTO users (id, name, email) VALUES (?, ?, ?)`,
			id, "user", fmt.Sprintf("user%d@example.com", id))
	}
	mustExec(t, sqlDB, `INSERT INTO films (id, title, owner_id, private) VALUES (10, 'Dune', 1, 0)`)
	mustExec(t, sqlDB, `INSERT INTO films (id, title, owner_id, private) VALUES (11, 'Heat', 1, 0)`)
	mustExec(t, sqlDB, `INSERT INTO films (id, title, owner_id, private) VALUES (12, 'Rushes', 1, 1)`)
}

func TestInsertAndGetByKey(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetByKey(ctx, 10, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FilmID != 10 || got.ReviewerID != 2 {
		t.Fatalf("key = (%d,%d), want (10,2)", got.FilmID, got.ReviewerID)
	}
	if got.Completed {
		t.Fatal("fresh invitation should not be completed")
	}
	if got.ReviewDate != nil || got.Rating != nil || got.Review != nil {
		t.Fatalf("optional fields should be unset, got %+v", got)
	}
}

func TestGetByKeyMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)

	_, err := store.GetByKey(context.Background(), 10, 3)
	if !errors.Is(err, reviews.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertDuplicateReturnsConflict(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.Insert(ctx, 10, 2)
	if !errors.Is(err, reviews.ErrConflict) {
		t.Fatalf("duplicate insert err = %v, want ErrConflict", err)
	}
}

func TestInsertUnknownReviewerReturnsConflict(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)

	err := store.Insert(context.Background(), 10, 99)
	if !errors.Is(err, reviews.ErrConflict) {
		t.Fatalf("insert err = %v, want ErrConflict", err)
	}
}

func TestListByFilmPaginates(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	for _, reviewer := range []int64{4, 2, 3} {
		if err := store.Insert(ctx, 10, reviewer); err != nil {
			t.Fatalf("insert reviewer %d: %v", reviewer, err)
		}
	}

	first, total, err := store.ListByFilm(ctx, 10, 0, 2)
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(first) != 2 || first[0].ReviewerID != 2 || first[1].ReviewerID != 3 {
		t.Fatalf("first page = %+v, want reviewers 2,3", first)
	}

	second, _, err := store.ListByFilm(ctx, 10, 2, 2)
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(second) != 1 || second[0].ReviewerID != 4 {
		t.Fatalf("second page = %+v, want reviewer 4", second)
	}

	past, total, err := store.ListByFilm(ctx, 10, math.MaxInt-2, 2)
	if err != nil {
		t.Fatalf("list far past the end: %v", err)
	}
	if len(past) != 0 || total != 3 {
		t.Fatalf("far page = %d items, total %d, want 0 items, total 3", len(past), total)
	}

	empty, total, err := store.ListByFilm(ctx, 11, 0, 2)
	if err != nil {
		t.Fatalf("list empty film: %v", err)
	}
	if len(empty) != 0 || total != 0 {
		t.Fatalf("film without reviews = %d items, total %d", len(empty), total)
	}
}

func TestCountByFilm(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	for _, reviewer := range []int64{2, 3} {
		if err := store.Insert(ctx, 10, reviewer); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := store.CountByFilm(ctx, 10)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}

	n, err = store.CountByFilm(ctx, 999)
	if err != nil {
		t.Fatalf("count unknown film: %v", err)
	}
	if n != 0 {
		t.Fatalf("count unknown film = %d, want 0", n)
	}
}

func TestUpdateLeavesUnsetFieldsUntouched(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Update(ctx, 10, 2, reviews.Patch{Rating: reviews.Some(4)}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	day := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)
	patch := reviews.Patch{
		Completed:  true,
		ReviewDate: reviews.Some(day),
		Review:     reviews.Some("tense and precise"),
	}
	if err := store.Update(ctx, 10, 2, patch); err != nil {
		t.Fatalf("second update: %v", err)
	}

	got, err := store.GetByKey(ctx, 10, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Completed {
		t.Fatal("completed = false, want true")
	}
	if got.Rating == nil || *got.Rating != 4 {
		t.Fatalf("rating = %v, want 4 kept from first update", got.Rating)
	}
	if got.Review == nil || *got.Review != "tense and precise" {
		t.Fatalf("review = %v", got.Review)
	}
	if got.ReviewDate == nil || !got.ReviewDate.Equal(day) {
		t.Fatalf("review_date = %v, want %v", got.ReviewDate, day)
	}
}

func TestUpdateRejectsOutOfRangeRating(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := store.Update(ctx, 10, 2, reviews.Patch{Completed: true, Rating: reviews.Some(4294967300)})
	if !errors.Is(err, reviews.ErrInvalidPatch) {
		t.Fatalf("err = %v, want ErrInvalidPatch", err)
	}

	got, err := store.GetByKey(ctx, 10, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Completed || got.Rating != nil {
		t.Fatalf("rejected update was written: %+v", got)
	}
}

func TestUpdateMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)

	err := store.Update(context.Background(), 10, 3, reviews.Patch{Completed: true})
	if !errors.Is(err, reviews.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteSkipsCompletedReviews(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, 10, 3); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Update(ctx, 10, 3, reviews.Patch{Completed: true}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	n, err := store.Delete(ctx, 10, 2)
	if err != nil || n != 1 {
		t.Fatalf("delete pending = (%d, %v), want (1, nil)", n, err)
	}
	n, err = store.Delete(ctx, 10, 3)
	if err != nil || n != 0 {
		t.Fatalf("delete completed = (%d, %v), want (0, nil)", n, err)
	}
	if _, err := store.GetByKey(ctx, 10, 3); err != nil {
		t.Fatalf("completed review should survive: %v", err)
	}
}

func TestGetFilmAndOwnedReview(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	film, err := store.GetFilm(ctx, 12)
	if err != nil {
		t.Fatalf("get film: %v", err)
	}
	if film.OwnerID != 1 || !film.Private || film.Title != "Rushes" {
		t.Fatalf("film = %+v", film)
	}
	if _, err := store.GetFilm(ctx, 404); !errors.Is(err, reviews.ErrNotFound) {
		t.Fatalf("missing film err = %v, want ErrNotFound", err)
	}

	if err := store.Insert(ctx, 11, 4); err != nil {
		t.Fatalf("insert: %v", err)
	}
	owned, err := store.GetOwnedReview(ctx, 11, 4)
	if err != nil {
		t.Fatalf("get owned review: %v", err)
	}
	if owned.OwnerID != 1 || owned.Completed {
		t.Fatalf("owned = %+v", owned)
	}
	if _, err := store.GetOwnedReview(ctx, 11, 2); !errors.Is(err, reviews.ErrNotFound) {
		t.Fatalf("missing owned review err = %v, want ErrNotFound", err)
	}
}

func TestUserExists(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	ok, err := store.UserExists(ctx, 3)
	if err != nil || !ok {
		t.Fatalf("UserExists(3) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = store.UserExists(ctx, 77)
	if err != nil || ok {
		t.Fatalf("UserExists(77) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestUnassignedFilmsSkipsPrivateAndReviewed(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	ids, err := store.UnassignedFilms(ctx, 1)
	if err != nil {
		t.Fatalf("unassigned: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("unassigned = %v, want [10 11]", ids)
	}

	if err := store.Insert(ctx, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ids, err = store.UnassignedFilms(ctx, 1)
	if err != nil {
		t.Fatalf("unassigned: %v", err)
	}
	if len(ids) != 1 || ids[0] != 11 {
		t.Fatalf("unassigned = %v, want [11]", ids)
	}

	has, err := store.FilmHasReviews(ctx, 10)
	if err != nil || !has {
		t.Fatalf("FilmHasReviews(10) = (%v, %v), want (true, nil)", has, err)
	}
}

func TestReviewerLoadsIncludesIdleUsersAndExcludesOwner(t *testing.T) {
	t.Parallel()

	store, sqlDB := openTempStore(t)
	seed(t, sqlDB)
	ctx := context.Background()

	// reviewer 2 holds two reviews, reviewer 3 one, reviewer 4 none.
	for _, k := range [][2]int64{{10, 2}, {11, 2}, {10, 3}} {
		if err := store.Insert(ctx, k[0], k[1]); err != nil {
			t.Fatalf("insert %v: %v", k, err)
		}
	}

	loads, err := store.ReviewerLoads(ctx, 1)
	if err != nil {
		t.Fatalf("loads: %v", err)
	}
	want := []reviews.ReviewerLoad{
		{ReviewerID: 4, Count: 0},
		{ReviewerID: 3, Count: 1},
		{ReviewerID: 2, Count: 2},
	}
	if len(loads) != len(want) {
		t.Fatalf("loads = %+v, want %+v", loads, want)
	}
	for i := range want {
		if loads[i] != want[i] {
			t.Fatalf("loads[%d] = %+v, want %+v", i, loads[i], want[i])
		}
	}
}
