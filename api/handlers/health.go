package handlers

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/fleetstake/fleetstake/api"
)

// HealthChecker reports the readiness of the node's upstream dependencies.
type HealthChecker interface {
	HealthCheck() error
}

type Health struct {
	Checker HealthChecker
}

func (h *Health) Get(w http.ResponseWriter, r *http.Request) error {
	status := "ok"
	if h.Checker != nil {
		if err := h.Checker.HealthCheck(); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			status = err.Error()
		}
	}
	return api.Render(w, r, struct {
		Status string `json:"status"`
	}{status})
}
