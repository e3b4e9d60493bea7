package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/fleetstake/fleetstake/api"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
)

// Nodes serves the staking node fleet from the registry.
type Nodes struct {
	Store *registrystorage.Nodes
}

func (h *Nodes) List(w http.ResponseWriter, r *http.Request) error {
	records, err := h.Store.ListNodes()
	if err != nil {
		return errors.Wrap(err, "could not list nodes")
	}

	var response struct {
		Data []*nodeJSON `json:"data"`
	}
	response.Data = make([]*nodeJSON, len(records))
	for i := range records {
		response.Data[i] = nodeFromRecord(&records[i])
	}
	return api.Render(w, r, response)
}

func (h *Nodes) Get(w http.ResponseWriter, r *http.Request) error {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		return api.BadRequestError(errors.Wrap(err, "invalid node index"))
	}

	record, found, err := h.Store.GetNode(index)
	if err != nil {
		return errors.Wrap(err, "could not get node")
	}
	if !found {
		return api.ErrNotFound
	}
	return api.Render(w, r, nodeFromRecord(record))
}
