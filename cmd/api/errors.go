package main

import (
	"errors"
	"net/http"

	"filmreview/internal/domain/reviews"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.logger.Warnw("forbidden", "method", r.Method, "path", r.URL.Path)

	writeJSONErrorKind(w, http.StatusForbidden, "forbidden", "forbidden")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("conflict response", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONErrorKind(w, http.StatusConflict, err.Error(), "conflict")
}

func (app *application) alreadyCompletedResponse(w http.ResponseWriter, r *http.Request) {
	app.logger.Warnw("review already completed", "method", r.Method, "path", r.URL.Path)

	writeJSONErrorKind(w, http.StatusConflict, "review is already completed", "already_completed")
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONErrorKind(w, http.StatusNotFound, "not found", "not_found")
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)

	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// reviewErrorResponse maps review lifecycle errors onto HTTP responses.
// Storage failures stay opaque to the client.
func (app *application) reviewErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reviews.ErrNotFound):
		app.notFoundResponse(w, r, err)
	case errors.Is(err, reviews.ErrForbidden):
		app.forbiddenResponse(w, r)
	case errors.Is(err, reviews.ErrAlreadyCompleted):
		app.alreadyCompletedResponse(w, r)
	case errors.Is(err, reviews.ErrConflict):
		app.conflictResponse(w, r, errors.New("review already exists or reviewer does not exist"))
	case errors.Is(err, reviews.ErrInvalidPatch):
		app.badRequestResponse(w, r, err)
	default:
		app.internalServerError(w, r, err)
	}
}
