package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/splitpay/internal/clock"
	"github.com/smallbiznis/splitpay/internal/config"
	"github.com/smallbiznis/splitpay/internal/domain"
	"github.com/smallbiznis/splitpay/internal/mirror"
	"github.com/smallbiznis/splitpay/internal/seed"
	"github.com/smallbiznis/splitpay/internal/statement"
	"github.com/smallbiznis/splitpay/internal/store"
	"github.com/smallbiznis/splitpay/internal/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.June, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	slot, err := mirror.OpenBadgerSlot(mirror.BadgerConfig{InMemory: true, Key: "test:mirror"}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = slot.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	catalog := config.NewStaticCatalog(config.DefaultCatalog())
	clk := clock.NewFakeClock(testNow)

	engine := store.New(store.Params{
		DB:      db,
		Mirror:  mirror.New(slot, log),
		Seeder:  seed.NewCatalogSeeder(catalog),
		Catalog: catalog,
		Clock:   clk,
		Log:     log,
		Node:    node,
	})
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() { _ = engine.Flush(context.Background()) })

	sweep, err := sweeper.New(sweeper.Params{Payments: engine.Payments, Clock: clk, Log: log})
	require.NoError(t, err)

	return NewServer(ServerParams{
		Gin:        NewEngine(log, config.Config{Environment: "test"}),
		Store:      engine,
		Sweeper:    sweep,
		Statements: statement.NewPDFRenderer(),
		Clock:      clk,
		Log:        log,
	})
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

type createdOrder struct {
	Data struct {
		Order    domain.Order     `json:"order"`
		Payments []domain.Payment `json:"payments"`
	} `json:"data"`
}

func createOrder(t *testing.T, s *Server, first time.Time) createdOrder {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/v1/orders", map[string]any{
		"platformId":       "klarna",
		"totalAmount":      1000,
		"firstPaymentDate": first.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out createdOrder
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrderAndListPayments(t *testing.T) {
	s := newTestServer(t)
	created := createOrder(t, s, testNow.AddDate(0, 0, 7))
	require.Len(t, created.Data.Payments, 4)

	rec := doRequest(t, s, http.MethodGet, "/v1/payments?orderId="+created.Data.Order.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []domain.Payment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Data, 4)
}

func TestGetMissingOrderIsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error.Type)
}

func TestPatchOrderRejectsUnknownStatus(t *testing.T) {
	s := newTestServer(t)
	created := createOrder(t, s, testNow)

	rec := doRequest(t, s, http.MethodPatch, "/v1/orders/"+created.Data.Order.ID, map[string]any{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutRejectsKeyMismatch(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/v1/subscriptions/zip", map[string]any{"platformId": "klarna", "billingDay": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnmarkPaidSweepsPastDuePayment(t *testing.T) {
	s := newTestServer(t)
	created := createOrder(t, s, testNow.AddDate(0, 0, -3))
	first := created.Data.Payments[0]

	rec := doRequest(t, s, http.MethodPost, "/v1/payments/"+first.ID+"/paid", map[string]any{"paidAt": "2026-06-16"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodDelete, "/v1/payments/"+first.ID+"/paid", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data domain.Payment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.PaymentStatusOverdue, resp.Data.Status)
}

func TestImportRejectsOrphans(t *testing.T) {
	s := newTestServer(t)
	raw := []byte(`{"version":2,"exportedAt":"2026-06-01T00:00:00Z","orders":[],"payments":[{"id":"p","orderId":"ghost","platformId":"zip","amount":1,"dueDate":"2026-06-01T00:00:00Z","installmentNumber":1,"status":"pending","isManualOverride":false}],"platforms":[],"subscriptions":[],"limitHistory":[]}`)

	rec := doRequest(t, s, http.MethodPost, "/v1/import", raw)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Error.Orphaned)
}

func TestExportThenImportRoundTrip(t *testing.T) {
	s := newTestServer(t)
	createOrder(t, s, testNow)

	rec := doRequest(t, s, http.MethodGet, "/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.Bytes()

	rec = doRequest(t, s, http.MethodPost, "/v1/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data store.ImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Version)
	assert.Equal(t, 1, resp.Data.Orders)
	assert.Equal(t, 4, resp.Data.Payments)
}

func TestOrderStatementPDF(t *testing.T) {
	s := newTestServer(t)
	created := createOrder(t, s, testNow)

	rec := doRequest(t, s, http.MethodGet, "/v1/orders/"+created.Data.Order.ID+"/statement.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestRecordLimitChangeRoute(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/platforms/zip/limit", map[string]any{"creditLimit": 120000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, s, http.MethodGet, "/v1/limit-history?platformId=zip", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []domain.LimitChange `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, int64(120000), list.Data[0].NewLimit)
}
