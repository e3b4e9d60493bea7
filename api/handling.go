package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/golang/gddo/httputil"
)

const (
	contentTypePlainText = "text/plain"
	contentTypeJSON      = "application/json"
)

// HandlerFunc is an http.HandlerFunc that may fail. Errors are rendered as a
// JSON error response unless they render themselves.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

func Handler(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var errRenderer render.Renderer
		if !errors.As(err, &errRenderer) {
			errRenderer = Error(err)
		}
		if renderErr := render.Render(w, r, errRenderer); renderErr != nil {
			http.Error(w, renderErr.Error(), http.StatusInternalServerError)
		}
	}
}

// Render negotiates the content type and renders the response, defaulting to
// JSON. Responses implementing fmt.Stringer may render as plain text.
func Render(w http.ResponseWriter, r *http.Request, response any) error {
	contentType := httputil.NegotiateContentType(
		r,
		[]string{contentTypePlainText, contentTypeJSON},
		contentTypeJSON,
	)

	if contentType == contentTypePlainText {
		if stringer, ok := response.(fmt.Stringer); ok {
			render.PlainText(w, r, stringer.String())
			return nil
		}
	}
	render.JSON(w, r, response)
	return nil
}
