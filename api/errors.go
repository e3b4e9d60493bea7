package api

import (
	"net/http"

	"github.com/go-chi/render"
)

type ErrorResponse struct {
	Err  error `json:"-"`
	Code int   `json:"-"`

	Status  string `json:"status"`
	Message string `json:"error,omitempty"`
}

func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Code)
	return nil
}

func (e *ErrorResponse) Error() string {
	return e.Err.Error()
}

func BadRequestError(err error) *ErrorResponse {
	return &ErrorResponse{
		Err:     err,
		Code:    http.StatusBadRequest,
		Status:  http.StatusText(http.StatusBadRequest),
		Message: err.Error(),
	}
}

func Error(err error) *ErrorResponse {
	return &ErrorResponse{
		Err:     err,
		Code:    http.StatusInternalServerError,
		Status:  http.StatusText(http.StatusInternalServerError),
		Message: err.Error(),
	}
}

var ErrNotFound = &ErrorResponse{Code: http.StatusNotFound, Status: "Resource not found."}
