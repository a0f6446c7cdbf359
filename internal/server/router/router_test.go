package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/provisioning/internal/domain/models"
	"github.com/mamadbah2/provisioning/internal/repository/memory"
	"github.com/mamadbah2/provisioning/internal/server/handlers"
	"github.com/mamadbah2/provisioning/internal/service/aggregation"
	"github.com/mamadbah2/provisioning/internal/service/catalog"
	"github.com/mamadbah2/provisioning/internal/service/filters"
	"github.com/mamadbah2/provisioning/internal/service/reporting"
	"github.com/mamadbah2/provisioning/internal/service/substitution"
	"github.com/mamadbah2/provisioning/internal/testutil"
)

func newTestEngine(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()

	mirror := memory.NewCatalog()
	mirror.PutGroup(testutil.Cereals)
	mirror.PutGeneric(testutil.GenericRice)
	mirror.PutGeneric(testutil.GenericOats)
	mirror.PutOrigin(models.OriginProduct{ID: testutil.Rice.ID, Name: testutil.Rice.Name, GroupID: testutil.Cereals.ID})

	store := memory.NewStore()
	store.PutRouteType(models.RouteType{ID: 100, Name: "Bus"})
	store.PutRoute(models.Route{ID: 1, Name: "North", RouteTypeID: 100}, 1, 2)

	products := catalog.NewService(nil, mirror, catalog.NewMemoryCache(time.Hour), nil)
	agg := aggregation.NewService(store, store, store, filters.NewResolver(store, nil), products, 2, nil)
	subs := substitution.NewService(store, store, products, nil)
	reports := reporting.NewService(agg, nil)

	engine := New(
		handlers.NewSubstitutionHandler(agg, subs, products, reports, handlers.NewValidator(), nil),
		handlers.NewCatalogHandler(products, nil),
		nil,
	)
	return engine, store
}

func do(engine *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAssignsRequestID(t *testing.T) {
	engine, _ := newTestEngine(t)

	rec := do(engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(handlers.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(handlers.RequestIDHeader))
}

func TestForReview(t *testing.T) {
	engine, store := newTestEngine(t)
	store.PutNeed(testutil.NewTestNeed(1, testutil.WithNeedQuantity("10")))
	store.PutNeed(testutil.NewTestNeed(2, testutil.WithNeedQuantity("5")))

	rec := do(engine, http.MethodGet, "/substitutions/for-review?supplyWeek=2025-W10&routeTypeId=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]models.AggregatedRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "15", rows[0].Quantity.String())

	rec = do(engine, http.MethodGet, "/substitutions/for-review?routeId=999", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.AggregatedRow](t, rec))

	for _, query := range []string{"routeId=abc", "routeTypeId=-3", "supplyWeek=2025%20W10"} {
		rec = do(engine, http.MethodGet, "/substitutions/for-review?"+query, "")
		assert.Equalf(t, http.StatusBadRequest, rec.Code, "query %s", query)
	}
}

func TestProposalLifecycle(t *testing.T) {
	engine, store := newTestEngine(t)
	need := testutil.NewTestNeed(1, testutil.WithNeedQuantity("10"))
	store.PutNeed(need)

	body := `{"needId": ` + jsonInt(need.ID) + `, "genericProductId": 10, "quantityGeneric": "9.5"}`
	rec := do(engine, http.MethodPost, "/substitutions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.SubstitutionProposal](t, rec)
	assert.Equal(t, models.ProposalConfirmed, created.Status)
	assert.Equal(t, "9.5", created.QuantityGeneric.String())

	rec = do(engine, http.MethodPost, "/substitutions", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, created.ID, decode[models.SubstitutionProposal](t, rec).ID)

	id := jsonInt(created.ID)
	rec = do(engine, http.MethodGet, "/substitutions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(engine, http.MethodPost, "/substitutions/"+id+"/promote", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ProposalLogged, decode[models.SubstitutionProposal](t, rec).Status)

	rec = do(engine, http.MethodGet, "/substitutions/for-coordination", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AggregatedRow](t, rec), 1)

	rec = do(engine, http.MethodGet, "/substitutions/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[reporting.Summary](t, rec)
	assert.Equal(t, "10", summary.Quantity.String())

	rec = do(engine, http.MethodPost, "/substitutions/"+id+"/deactivate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(engine, http.MethodPost, "/substitutions/"+id+"/deactivate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(engine, http.MethodPost, "/substitutions/"+id+"/promote", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"missing need", `{"genericProductId": 10}`, http.StatusBadRequest},
		{"traded product without id", `{"needId": 1, "genericProductId": 10, "tradedProduct": {"name": "x"}}`, http.StatusBadRequest},
		{"unknown need", `{"needId": 987654, "genericProductId": 10}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(engine, http.MethodPost, "/substitutions", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestProposalIDMustBeNumeric(t *testing.T) {
	engine, _ := newTestEngine(t)

	assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodGet, "/substitutions/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(engine, http.MethodGet, "/substitutions/4040", "").Code)
}

func TestLookups(t *testing.T) {
	engine, store := newTestEngine(t)
	store.PutNeed(testutil.NewTestNeed(1))

	rec := do(engine, http.MethodGet, "/substitutions/consumption-week?supplyWeek=2025-W10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"supply_week":"2025-W10","consumption_week":"2025-W11"}`, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodGet, "/substitutions/consumption-week", "").Code)

	rec = do(engine, http.MethodGet, "/substitutions/generic-products?originProductId=1&search=oat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]models.GenericProductRef](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, testutil.GenericOats.ID, products[0].ID)

	rec = do(engine, http.MethodGet, "/substitutions/route-types?stage=review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.RouteType{{ID: 100, Name: "Bus"}}, decode[[]models.RouteType](t, rec))

	rec = do(engine, http.MethodGet, "/substitutions/routes?routeTypeId=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Route](t, rec), 1)

	rec = do(engine, http.MethodGet, "/substitutions/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.Group{testutil.Cereals}, decode[[]models.Group](t, rec))

	assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodGet, "/substitutions/groups?stage=archive", "").Code)
}

func TestFlushCatalogCache(t *testing.T) {
	engine, _ := newTestEngine(t)
	rec := do(engine, http.MethodPost, "/catalog/cache/flush", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func jsonInt(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
