package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"filmreview/internal/domain/reviews"
	"filmreview/internal/params"

	"github.com/go-chi/chi/v5"
)

func parseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// listFilmReviewsHandler godoc
//
//	@Summary		List reviews of a film
//	@Description	Returns one page of the film's reviews. Page size is fixed by the server.
//	@Tags			reviews
//	@Produce		json
//	@Param			filmID	path		int	true	"Film ID"
//	@Param			page	query		int	false	"Page number, starting at 1"
//	@Success		200		{object}	invitations.Page
//	@Failure		400		{object}	error
//	@Failure		500		{object}	error
//	@Router			/films/{filmID}/reviews [get]
func (app *application) listFilmReviewsHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	page, err := app.invitations.List(r.Context(), filmID, params.ParsePage(r.URL.Query()))
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, page)
}

// countFilmReviewsHandler godoc
//
//	@Summary		Count reviews of a film
//	@Tags			reviews
//	@Produce		json
//	@Param			filmID	path		int	true	"Film ID"
//	@Success		200		{object}	map[string]int
//	@Router			/films/{filmID}/reviews/total [get]
func (app *application) countFilmReviewsHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	total, err := app.invitations.Count(r.Context(), filmID)
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]int{"total": total})
}

// getFilmReviewHandler godoc
//
//	@Summary		Get one review
//	@Tags			reviews
//	@Produce		json
//	@Param			filmID		path		int	true	"Film ID"
//	@Param			reviewerID	path		int	true	"Reviewer ID"
//	@Success		200			{object}	reviews.Review
//	@Failure		404			{object}	error
//	@Router			/films/{filmID}/reviews/{reviewerID} [get]
func (app *application) getFilmReviewHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	reviewerID, err := parseIDParam(r, "reviewerID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	review, err := app.invitations.Get(r.Context(), filmID, reviewerID)
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, review)
}

type issueReviewPayload struct {
	ReviewerID int64 `json:"reviewer_id" validate:"required,gt=0"`
}

// issueReviewHandler godoc
//
//	@Summary		Invite a reviewer
//	@Description	The film owner invites a user to review a public film.
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			filmID	path		int					true	"Film ID"
//	@Param			payload	body		issueReviewPayload	true	"Reviewer to invite"
//	@Success		201		{object}	reviews.Review
//	@Failure		400		{object}	error
//	@Failure		403		{object}	error
//	@Failure		404		{object}	error
//	@Failure		409		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/films/{filmID}/reviews [post]
func (app *application) issueReviewHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload issueReviewPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	requesterID, ok := getUserIDFromContext(r)
	if !ok {
		app.unauthorizedErrorResponse(w, r, errors.New("missing user"))
		return
	}

	review, err := app.invitations.Issue(r.Context(), payload.ReviewerID, filmID, requesterID)
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusCreated, review)
}

// updateReviewPayload carries the reviewer's changes. Absent optional fields
// leave the stored value untouched; completed is always written.
type updateReviewPayload struct {
	Completed  *bool   `json:"completed" validate:"required"`
	ReviewDate *string `json:"review_date" validate:"omitempty,datetime=2006-01-02"`
	Rating     *int    `json:"rating" validate:"omitempty,min=1,max=10"`
	Review     *string `json:"review" validate:"omitempty,max=1000"`
}

func (p updateReviewPayload) patch() (reviews.Patch, error) {
	patch := reviews.Patch{Completed: *p.Completed}
	if p.ReviewDate != nil {
		d, err := time.Parse(reviews.DateLayout, *p.ReviewDate)
		if err != nil {
			return reviews.Patch{}, fmt.Errorf("invalid review_date: %w", err)
		}
		patch.ReviewDate = reviews.Some(d)
	}
	if p.Rating != nil {
		patch.Rating = reviews.Some(*p.Rating)
	}
	if p.Review != nil {
		patch.Review = reviews.Some(*p.Review)
	}
	return patch, nil
}

// updateReviewHandler godoc
//
//	@Summary		Update a review
//	@Description	The invited reviewer fills in or completes their review.
//	@Tags			reviews
//	@Accept			json
//	@Produce		json
//	@Param			filmID		path		int					true	"Film ID"
//	@Param			reviewerID	path		int					true	"Reviewer ID"
//	@Param			payload		body		updateReviewPayload	true	"Fields to change"
//	@Success		200			{object}	reviews.Review
//	@Failure		400			{object}	error
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/films/{filmID}/reviews/{reviewerID} [put]
func (app *application) updateReviewHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	reviewerID, err := parseIDParam(r, "reviewerID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var payload updateReviewPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	patch, err := payload.patch()
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	callerID, ok := getUserIDFromContext(r)
	if !ok {
		app.unauthorizedErrorResponse(w, r, errors.New("missing user"))
		return
	}

	review, err := app.invitations.Update(r.Context(), patch, filmID, reviewerID, callerID)
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, review)
}

// deleteReviewHandler godoc
//
//	@Summary		Revoke an invitation
//	@Description	The film owner removes a review that is not completed yet.
//	@Tags			reviews
//	@Param			filmID		path	int	true	"Film ID"
//	@Param			reviewerID	path	int	true	"Reviewer ID"
//	@Success		204
//	@Failure		403	{object}	error
//	@Failure		404	{object}	error
//	@Failure		409	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/films/{filmID}/reviews/{reviewerID} [delete]
func (app *application) deleteReviewHandler(w http.ResponseWriter, r *http.Request) {
	filmID, err := parseIDParam(r, "filmID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	reviewerID, err := parseIDParam(r, "reviewerID")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	requesterID, ok := getUserIDFromContext(r)
	if !ok {
		app.unauthorizedErrorResponse(w, r, errors.New("missing user"))
		return
	}

	if err := app.invitations.Delete(r.Context(), filmID, reviewerID, requesterID); err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
