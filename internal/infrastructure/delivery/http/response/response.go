// Package response writes the JSON envelope every API endpoint answers with.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"tubegrab/internal/errs"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    any    `json:"data"`
}

// WriteJSON writes the envelope with status.
func WriteJSON(w http.ResponseWriter, status int, message string, data any, err error) {
	var errorMsg string
	if err != nil {
		errorMsg = err.Error()
	}

	r := Response{
		Message: message,
		Data:    data,
		Error:   errorMsg,
	}

	bytes, err := json.Marshal(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bytes)
}

// StatusOf maps a service error to the HTTP status it is answered with.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrJobNotFinished):
		return http.StatusConflict
	case errors.Is(err, errs.ErrJobQueueFull), errors.Is(err, errs.ErrServiceClosed),
		errors.Is(err, errs.ErrSearchDisabled):
		return http.StatusServiceUnavailable
	}

	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case errs.KindAccessDenied:
		return http.StatusForbidden
	case errs.KindBotChallenge:
		return http.StatusTooManyRequests
	case errs.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status StatusOf picks for it.
func Error(w http.ResponseWriter, message string, data any, err error) {
	WriteJSON(w, StatusOf(err), message, data, err)
}

func OK(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusOK, message, res, err)
}

// NoContent writes a bare 204; the status does not allow a body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Accepted(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusAccepted, message, res, err)
}

func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusBadRequest, message, nil, err)
}

func NotFound(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusNotFound, message, nil, err)
}

func UnprocessableEntity(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, http.StatusUnprocessableEntity, message, nil, err)
}

func InternalServerError(w http.ResponseWriter, message string, res any, err error) {
	WriteJSON(w, http.StatusInternalServerError, message, res, err)
}
