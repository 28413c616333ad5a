package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"sponsorportal/services/testutil"
)

func TestReadinessWithDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)

	h := ProvideHealth(HealthParams{DB: db})
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, StatusHealthy, body.Status)
	require.Len(t, body.Deps, 1)
	require.Equal(t, "sqlite", body.Deps[0].Name)
}

func TestReadinessFailsWhenDatabaseClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	h := ProvideHealth(HealthParams{DB: db})
	r := gin.New()
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
