package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banditlab/internal/arm"
	"banditlab/internal/dist"
	"banditlab/internal/engine"
	"banditlab/internal/strategy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	session, warnings, err := engine.NewSession(engine.SessionConfig{
		Seed: 7,
		Arms: []arm.Config{
			{ID: "a", Family: dist.Bernoulli, Params: []float64{0.2}},
			{ID: "b", Family: dist.Bernoulli, Params: []float64{0.8}},
		},
		Strategies: []string{strategy.TypeUCB1, strategy.TypeEXP3},
	})
	require.NoError(t, err)
	require.Empty(t, warnings)

	srv := New(session, nil)
	return srv, srv.Router()
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func getJSON(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)
	w := getJSON(t, router, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestConfigureArms(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/arms", gin.H{"arms": []gin.H{
		{"id": "x", "family": "normal", "params": []float64{5, 1}},
		{"id": "y", "family": "uniform", "params": []float64{0, 10}},
		{"id": "z", "family": "poisson", "params": []float64{3}},
	}})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Arms []arm.Config `json:"arms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Arms, 3)
	assert.Equal(t, "x", resp.Arms[0].ID)
}

func TestConfigureArmsRejectsInvalid(t *testing.T) {
	_, router := newTestServer(t)

	// Only one arm.
	w := postJSON(t, router, "/api/arms", gin.H{"arms": []gin.H{
		{"id": "x", "family": "normal", "params": []float64{5, 1}},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad domain: uniform with min > max.
	w = postJSON(t, router, "/api/arms", gin.H{"arms": []gin.H{
		{"id": "x", "family": "uniform", "params": []float64{9, 1}},
		{"id": "y", "family": "bernoulli", "params": []float64{0.5}},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetStrategies(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/strategies", gin.H{
		"strategies": []string{strategy.TypeUCB1, strategy.TypeExploreThenCommit},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Active   []string `json:"active"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.ElementsMatch(t, []string{strategy.TypeUCB1, strategy.TypeExploreThenCommit}, resp.Active)
	assert.Empty(t, resp.Warnings)
}

func TestSetStrategiesEmptySetIsUnprocessable(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/strategies", gin.H{
		"strategies": []string{"no-such-strategy"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "warnings")
}

func TestPull(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/pull", gin.H{"arm": "a"})
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.RoundResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Round)
	assert.Equal(t, "a", result.User.Arm)
	assert.Equal(t, "b", result.Best.Arm)
	assert.Len(t, result.Strategies, 2)
	assert.Zero(t, result.Best.CumRegret)
}

func TestPullUnknownArm(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/pull", gin.H{"arm": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSeriesReflectsPulls(t *testing.T) {
	_, router := newTestServer(t)
	for i := 0; i < 3; i++ {
		w := postJSON(t, router, "/api/pull", gin.H{"arm": "b"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := getJSON(t, router, "/api/series")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Round  int                     `json:"round"`
		Order  []string                `json:"order"`
		Series map[string]engine.Track `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Round)
	assert.Contains(t, resp.Order, engine.SeriesUser)
	assert.Len(t, resp.Series[engine.SeriesUser].Payout, 3)
}

func TestStrategyDescriptors(t *testing.T) {
	_, router := newTestServer(t)
	w := getJSON(t, router, "/api/strategy-descriptors")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Strategies []strategy.Descriptor `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Strategies, len(strategy.Types()))
}

func TestHardModeToggle(t *testing.T) {
	srv, router := newTestServer(t)
	w := postJSON(t, router, "/api/hardmode", gin.H{"enabled": true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, srv.session.HardMode())

	w = postJSON(t, router, "/api/hardmode", gin.H{"enabled": false})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, srv.session.HardMode())
}

func TestPermute(t *testing.T) {
	_, router := newTestServer(t)
	w := postJSON(t, router, "/api/permute", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Arms []arm.Config `json:"arms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Arms, 2)
	assert.Equal(t, "a", resp.Arms[0].ID)
}

func TestResetRewindsSession(t *testing.T) {
	srv, router := newTestServer(t)
	for i := 0; i < 2; i++ {
		w := postJSON(t, router, "/api/pull", gin.H{"arm": "a"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := postJSON(t, router, "/api/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, srv.session.Round())
	assert.Empty(t, srv.session.Journal())
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestServer(t)
	postJSON(t, router, "/api/pull", gin.H{"arm": "a"})

	w := getJSON(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "banditlab_session_rounds_total")
}
