package handlers

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/fleetstake/fleetstake/api"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
)

// Events serves the append-only observable log.
type Events struct {
	Store *registrystorage.Events
}

func (h *Events) List(w http.ResponseWriter, r *http.Request) error {
	records, err := h.Store.List()
	if err != nil {
		return errors.Wrap(err, "could not list events")
	}

	typeFilter := r.URL.Query().Get("type")

	var response struct {
		Data []*eventJSON `json:"data"`
	}
	response.Data = make([]*eventJSON, 0, len(records))
	for i := range records {
		if typeFilter != "" && records[i].Type != typeFilter {
			continue
		}
		response.Data = append(response.Data, eventFromRecord(&records[i]))
	}
	return api.Render(w, r, response)
}
