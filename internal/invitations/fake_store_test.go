package invitations

import (
	"context"
	"sort"
	"sync"

	"filmreview/internal/domain/reviews"
)

type reviewKey struct {
	film, reviewer int64
}

// fakeStore is an in-memory reviews.Store. Hooks let tests inject failures
// per operation; WithReviewsTx serializes transactions on one lock.
type fakeStore struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	users   map[int64]bool
	films   map[int64]reviews.Film
	reviews map[reviewKey]reviews.Review

	insertErr     func(filmID, reviewerID int64) error
	unassignedErr error
	loadsErr      error
	deleteHook    func(filmID, reviewerID int64)
	inserts       int
	txCalls       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[int64]bool{},
		films:   map[int64]reviews.Film{},
		reviews: map[reviewKey]reviews.Review{},
	}
}

func (f *fakeStore) addUsers(ids ...int64) {
	for _, id := range ids {
		f.users[id] = true
	}
}

func (f *fakeStore) addFilm(id, owner int64, private bool) {
	f.films[id] = reviews.Film{ID: id, OwnerID: owner, Private: private, Title: "film"}
}

func (f *fakeStore) put(filmID, reviewerID int64, completed bool) {
	f.reviews[reviewKey{filmID, reviewerID}] = reviews.NewInvitation(reviewerID, filmID, completed)
}

func (f *fakeStore) WithReviewsTx(ctx context.Context, fn func(reviews.Store) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	f.mu.Lock()
	f.txCalls++
	f.mu.Unlock()
	return fn(f)
}

func (f *fakeStore) ListByFilm(ctx context.Context, filmID int64, offset, limit int) ([]reviews.Review, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []reviews.Review
	for k, r := range f.reviews {
		if k.film == filmID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ReviewerID < all[j].ReviewerID })

	total := len(all)
	if offset >= total {
		return []reviews.Review{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (f *fakeStore) CountByFilm(ctx context.Context, filmID int64) (int, error) {
	_, total, err := f.ListByFilm(ctx, filmID, 0, 0)
	return total, err
}

func (f *fakeStore) GetByKey(ctx context.Context, filmID, reviewerID int64) (*reviews.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[reviewKey{filmID, reviewerID}]
	if !ok {
		return nil, reviews.ErrNotFound
	}
	return &r, nil
}

func (f *fakeStore) GetFilm(ctx context.Context, filmID int64) (*reviews.Film, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	film, ok := f.films[filmID]
	if !ok {
		return nil, reviews.ErrNotFound
	}
	return &film, nil
}

func (f *fakeStore) GetOwnedReview(ctx context.Context, filmID, reviewerID int64) (*reviews.OwnedReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.reviews[reviewKey{filmID, reviewerID}]
	if !ok {
		return nil, reviews.ErrNotFound
	}
	return &reviews.OwnedReview{OwnerID: f.films[filmID].OwnerID, Completed: r.Completed}, nil
}

func (f *fakeStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

func (f *fakeStore) Insert(ctx context.Context, filmID, reviewerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inserts++
	if f.insertErr != nil {
		if err := f.insertErr(filmID, reviewerID); err != nil {
			return err
		}
	}
	k := reviewKey{filmID, reviewerID}
	if _, dup := f.reviews[k]; dup {
		return reviews.ErrConflict
	}
	f.reviews[k] = reviews.NewInvitation(reviewerID, filmID, false)
	return nil
}

func (f *fakeStore) Update(ctx context.Context, filmID, reviewerID int64, patch reviews.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := reviewKey{filmID, reviewerID}
	r, ok := f.reviews[k]
	if !ok {
		return reviews.ErrNotFound
	}
	r.Completed = patch.Completed
	if d, ok := patch.ReviewDate.Get(); ok {
		r.ReviewDate = &d
	}
	if v, ok := patch.Rating.Get(); ok {
		r.Rating = &v
	}
	if v, ok := patch.Review.Get(); ok {
		r.Review = &v
	}
	f.reviews[k] = r
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, filmID, reviewerID int64) (int64, error) {
	if f.deleteHook != nil {
		f.deleteHook(filmID, reviewerID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	k := reviewKey{filmID, reviewerID}
	r, ok := f.reviews[k]
	if !ok || r.Completed {
		return 0, nil
	}
	delete(f.reviews, k)
	return 1, nil
}

func (f *fakeStore) UnassignedFilms(ctx context.Context, ownerID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unassignedErr != nil {
		return nil, f.unassignedErr
	}
	reviewed := map[int64]bool{}
	for k := range f.reviews {
		reviewed[k.film] = true
	}
	var ids []int64
	for id, film := range f.films {
		if film.OwnerID == ownerID && !film.Private && !reviewed[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeStore) ReviewerLoads(ctx context.Context, excludeUserID int64) ([]reviews.ReviewerLoad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadsErr != nil {
		return nil, f.loadsErr
	}
	counts := map[int64]int{}
	for id := range f.users {
		if id != excludeUserID {
			counts[id] = 0
		}
	}
	for k := range f.reviews {
		if _, ok := counts[k.reviewer]; ok {
			counts[k.reviewer]++
		}
	}
	loads := make([]reviews.ReviewerLoad, 0, len(counts))
	for id, n := range counts {
		loads = append(loads, reviews.ReviewerLoad{ReviewerID: id, Count: n})
	}
	sort.Slice(loads, func(i, j int) bool {
		if loads[i].Count != loads[j].Count {
			return loads[i].Count < loads[j].Count
		}
		return loads[i].ReviewerID < loads[j].ReviewerID
	})
	return loads, nil
}

func (f *fakeStore) FilmHasReviews(ctx context.Context, filmID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for k := range f.reviews {
		if k.film == filmID {
			return true, nil
		}
	}
	return false, nil
}
