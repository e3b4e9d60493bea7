package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/fleetstake/fleetstake/api"
	"github.com/fleetstake/fleetstake/logging"
	registrystorage "github.com/fleetstake/fleetstake/registry/storage"
	"github.com/fleetstake/fleetstake/storage/basedb"
	"github.com/fleetstake/fleetstake/storage/kv"
)

type stubChecker struct {
	err error
}

func (c *stubChecker) HealthCheck() error {
	return c.err
}

func newTestRouter(t *testing.T) (chi.Router, *registrystorage.Nodes, *registrystorage.Validators, *registrystorage.Events) {
	logger := logging.TestLogger(t)
	db, err := kv.NewInMemory(logger, basedb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	nodes := registrystorage.NewNodes(logger, db)
	validators := registrystorage.NewValidators(logger, db)
	events := registrystorage.NewEvents(logger, db)

	router := chi.NewRouter()
	nodesHandler := &Nodes{Store: nodes}
	validatorsHandler := &Validators{Store: validators}
	eventsHandler := &Events{Store: events}
	router.Get("/v1/nodes", api.Handler(nodesHandler.List))
	router.Get("/v1/nodes/{index}", api.Handler(nodesHandler.Get))
	router.Get("/v1/validators", api.Handler(validatorsHandler.List))
	router.Get("/v1/events", api.Handler(eventsHandler.List))

	return router, nodes, validators, events
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNodesEndpoints(t *testing.T) {
	router, nodes, _, _ := newTestRouter(t)

	pod := common.HexToAddress("0x2222222222222222222222222222222222222222")
	require.NoError(t, nodes.SaveNode(nil, &registrystorage.NodeRecord{
		Index:              0,
		Address:            common.HexToAddress("0x1111111111111111111111111111111111111111"),
		PodAddress:         &pod,
		AllocatedETH:       big.NewInt(32),
		Balance:            big.NewInt(0),
		InitializedVersion: 1,
	}))

	t.Run("list", func(t *testing.T) {
		rec := get(t, router, "/v1/nodes")
		require.Equal(t, http.StatusOK, rec.Code)

		var response struct {
			Data []struct {
				Index   uint64         `json:"index"`
				Address common.Address `json:"address"`
				Pod     common.Address `json:"pod"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		require.Len(t, response.Data, 1)
		require.Equal(t, pod, response.Data[0].Pod)
	})

	t.Run("get by index", func(t *testing.T) {
		rec := get(t, router, "/v1/nodes/0")
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := get(t, router, "/v1/nodes/42")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("get malformed index", func(t *testing.T) {
		rec := get(t, router, "/v1/nodes/abc")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestValidatorsEndpoint(t *testing.T) {
	router, _, validators, _ := newTestRouter(t)

	pk1 := phase0.BLSPubKey{0x01}
	pk2 := phase0.BLSPubKey{0x02}
	_, err := validators.AppendValidator(nil, pk1, 0)
	require.NoError(t, err)
	_, err = validators.AppendValidator(nil, pk2, 1)
	require.NoError(t, err)

	var response struct {
		Data []struct {
			NodeID uint64 `json:"node_id"`
		} `json:"data"`
	}

	rec := get(t, router, "/v1/validators")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 2)

	rec = get(t, router, "/v1/validators?node=1")
	require.Equal(t, http.StatusOK, rec.Code)
	response.Data = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 1)
	require.Equal(t, uint64(1), response.Data[0].NodeID)

	rec = get(t, router, "/v1/validators?node=zzz")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsEndpoint(t *testing.T) {
	router, _, _, events := newTestRouter(t)

	require.NoError(t, events.Append(nil, registrystorage.EventTypeNodeCreated, map[string]uint64{"node_id": 0}))
	require.NoError(t, events.Append(nil, registrystorage.EventTypePodCreated, map[string]uint64{"node_id": 0}))

	var response struct {
		Data []struct {
			Seq  uint64 `json:"seq"`
			Type string `json:"type"`
		} `json:"data"`
	}

	rec := get(t, router, "/v1/events")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 2)
	require.Equal(t, uint64(0), response.Data[0].Seq)

	rec = get(t, router, "/v1/events?type="+registrystorage.EventTypePodCreated)
	require.Equal(t, http.StatusOK, rec.Code)
	response.Data = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 1)
	require.Equal(t, registrystorage.EventTypePodCreated, response.Data[0].Type)
}

func TestHealthEndpoint(t *testing.T) {
	checker := &stubChecker{}
	handler := &Health{Checker: checker}
	router := chi.NewRouter()
	router.Get("/v1/health", api.Handler(handler.Get))

	rec := get(t, router, "/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Equal(t, "ok", response.Status)

	checker.err = errors.New("execution client down")
	rec = get(t, router, "/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Equal(t, "execution client down", response.Status)
}
