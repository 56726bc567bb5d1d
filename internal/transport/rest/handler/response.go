package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"wellping/internal/apperror"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError answers with the status carried by err. Errors that are
// not application errors are reported without detail.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, apperror.HTTPStatus(err), map[string]string{
			"error": appErr.Message,
			"type":  string(appErr.Type),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.NewValidationError("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.NewValidationError(err.Error())
	}
	return nil
}
