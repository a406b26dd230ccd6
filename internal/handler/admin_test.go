package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegabingo/card-reservation/internal/config"
	"github.com/omegabingo/card-reservation/internal/handler"
	"github.com/omegabingo/card-reservation/internal/livecache"
	"github.com/omegabingo/card-reservation/internal/model"
	"github.com/omegabingo/card-reservation/internal/repository"
	"github.com/omegabingo/card-reservation/internal/resolver"
	"github.com/omegabingo/card-reservation/internal/router"
	"github.com/omegabingo/card-reservation/internal/session"
	"github.com/omegabingo/card-reservation/internal/store"
	"github.com/omegabingo/card-reservation/internal/utils"
)

type adminApp struct {
	e     *echo.Echo
	docs  store.Store
	cache *livecache.Cache
	cfg   config.Config
}

func newAdminApp(t *testing.T) *adminApp {
	t.Helper()
	hash, err := utils.HashPassword("s3cret-admin", 4)
	require.NoError(t, err)
	cfg := config.Config{
		JWTSecret:         "test-secret",
		AccessTTLMin:      15,
		AdminEmail:        "admin@example.com",
		AdminPasswordHash: hash,
	}

	docs := store.NewMemory()
	cache := livecache.New(75)
	cache.Wire(docs)
	configRepo := repository.NewConfigRepo(docs)

	sessions := session.NewManager(session.NewMemoryKV(), cache, docs, 300*time.Second, 300)
	reservations := repository.NewReservationRepo(docs)
	sales := repository.NewSaleRepo(docs)
	confirm := resolver.New(docs, cache, 300)

	public := handler.NewPublicHandler(cache, sessions, configRepo, reservations, sales)
	selection := handler.NewSelectionHandler(sessions, configRepo, nil)
	auth := handler.NewAuthHandler(cfg)
	admin := handler.NewAdminHandler(confirm, reservations, sales, configRepo, 300, "")
	noLimit := func(next echo.HandlerFunc) echo.HandlerFunc { return next }

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterPublic(e, public, selection, noLimit)
	router.RegisterAdmin(e, auth, admin, cfg.JWTSecret)

	return &adminApp{e: e, docs: docs, cache: cache, cfg: cfg}
}

func (a *adminApp) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *adminApp) login(t *testing.T) string {
	t.Helper()
	rec := a.request(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "s3cret-admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handler.LoginResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Access.Token)
	return resp.Access.Token
}

func (a *adminApp) reserve(t *testing.T, sessionKey string, cards ...int) string {
	t.Helper()
	for _, card := range cards {
		body, _ := json.Marshal(map[string]int{"card": card})
		req := httptest.NewRequest(http.MethodPost, "/v1/selection/toggle", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("X-Session-Key", sessionKey)
		rec := httptest.NewRecorder()
		a.e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	app := &testApp{e: a.e}
	rec := app.submit(t, sessionKey, map[string]string{
		"name": "Ana Lopez", "phone": "5550001111", "reference": "4821",
		"proofUrl": "https://cdn.example.com/proof.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp handler.SubmitResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ReservationID
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	app := newAdminApp(t)
	rec := app.request(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	app := newAdminApp(t)
	rec := app.request(t, http.MethodGet, "/v1/admin/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConfirmFlow(t *testing.T) {
	app := newAdminApp(t)
	token := app.login(t)

	id := app.reserve(t, "visitor-a", 5)

	rec := app.request(t, http.MethodGet, "/v1/admin/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = app.request(t, http.MethodPost, "/v1/admin/reservations/"+id+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res resolver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []int{5}, res.Sold)
	assert.Empty(t, res.Conflicts)

	// Confirming again reports the reservation gone.
	rec = app.request(t, http.MethodPost, "/v1/admin/reservations/"+id+"/confirm", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.request(t, http.MethodGet, "/v1/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats repository.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.CardsSold)
	assert.Equal(t, 300, stats.TotalRevenue)
}

func TestConfirmDoubleReservationReportsConflict(t *testing.T) {
	app := newAdminApp(t)
	token := app.login(t)

	// Two pending reservations both list card 9, written straight to the
	// store to emulate a race the API itself would prevent.
	writePending := func() string {
		data, err := json.Marshal(model.PendingReservation{
			Cards: []int{9}, Name: "Ana Lopez", Phone: "5550001111",
			Reference: "4821", ProofURL: "https://cdn.example.com/proof.jpg",
			TotalAmount: 300, Timestamp: time.Now().UTC(), Status: model.PendingStatus,
		})
		require.NoError(t, err)
		id, err := app.docs.Add(context.Background(), store.CollectionPending, data)
		require.NoError(t, err)
		return id
	}
	first := writePending()
	second := writePending()

	rec := app.request(t, http.MethodPost, "/v1/admin/reservations/"+first+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res resolver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []int{9}, res.Sold)

	// The second confirmation degrades to a forced rejection.
	rec = app.request(t, http.MethodPost, "/v1/admin/reservations/"+second+"/confirm", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "conflict")

	var grid handler.GridResp
	req := httptest.NewRequest(http.MethodGet, "/v1/cards", nil)
	req.Header.Set("X-Session-Key", "visitor-c")
	w := httptest.NewRecorder()
	app.e.ServeHTTP(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grid))
	assert.Equal(t, "sold", grid.Cards[8].Status)
}

func TestStoreToggleEndpoint(t *testing.T) {
	app := newAdminApp(t)
	token := app.login(t)

	rec := app.request(t, http.MethodPost, "/v1/admin/store/toggle", token, map[string]bool{"open": false})
	require.Equal(t, http.StatusOK, rec.Code)

	// Public mutations are now refused.
	body, _ := json.Marshal(map[string]int{"card": 5})
	req := httptest.NewRequest(http.MethodPost, "/v1/selection/toggle", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Session-Key", "visitor-a")
	w := httptest.NewRecorder()
	app.e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDeleteSaleReleasesCard(t *testing.T) {
	app := newAdminApp(t)
	token := app.login(t)

	id := app.reserve(t, "visitor-a", 44)
	rec := app.request(t, http.MethodPost, "/v1/admin/reservations/"+id+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res resolver.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = app.request(t, http.MethodDelete, "/v1/admin/sales/"+res.SaleID, token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The card is sellable again.
	body, _ := json.Marshal(map[string]int{"card": 44})
	req := httptest.NewRequest(http.MethodPost, "/v1/selection/toggle", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Session-Key", "visitor-b")
	w := httptest.NewRecorder()
	app.e.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
