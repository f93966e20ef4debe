package main

import (
	"errors"
	"expvar"
	"net/http"
)

var (
	assignmentRuns     = expvar.NewInt("assignment_runs")
	assignmentsCreated = expvar.NewInt("assignments_created")
	assignmentFailures = expvar.NewInt("assignment_failures")
)

// assignReviewersHandler godoc
//
//	@Summary		Balance reviewers across films
//	@Description	Assigns every unreviewed public film of the caller to the reviewer with the fewest reviews.
//	@Tags			reviews
//	@Produce		json
//	@Success		200	{object}	reviews.AssignmentReport
//	@Failure		401	{object}	error
//	@Failure		500	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/films/assignments [post]
func (app *application) assignReviewersHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getUserIDFromContext(r)
	if !ok {
		app.unauthorizedErrorResponse(w, r, errors.New("missing user"))
		return
	}

	report, err := app.assigner.AssignBalanced(r.Context(), ownerID)
	if err != nil {
		app.reviewErrorResponse(w, r, err)
		return
	}

	assignmentRuns.Add(1)
	assignmentsCreated.Add(int64(len(report.Assigned)))
	assignmentFailures.Add(int64(len(report.Failed)))

	app.jsonResponse(w, http.StatusOK, report)
}
