package handlers

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fleetstake/fleetstake/api"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
)

// Validators serves the committed validator ledger.
type Validators struct {
	Store *registrystorage.Validators
}

func (h *Validators) List(w http.ResponseWriter, r *http.Request) error {
	records, err := h.Store.ListValidators()
	if err != nil {
		return errors.Wrap(err, "could not list validators")
	}

	// Optional filter by owning node.
	var nodeFilter *uint64
	if raw := r.URL.Query().Get("node"); raw != "" {
		nodeID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return api.BadRequestError(errors.Wrap(err, "invalid node filter"))
		}
		nodeFilter = &nodeID
	}

	var response struct {
		Data []*validatorJSON `json:"data"`
	}
	response.Data = make([]*validatorJSON, 0, len(records))
	for i := range records {
		if nodeFilter != nil && records[i].NodeID != *nodeFilter {
			continue
		}
		response.Data = append(response.Data, validatorFromRecord(&records[i]))
	}
	return api.Render(w, r, response)
}
