package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoplaza/autoplaza/internal/api"
	"github.com/autoplaza/autoplaza/internal/api/handler"
	"github.com/autoplaza/autoplaza/internal/api/models"
	"github.com/autoplaza/autoplaza/internal/auth"
	"github.com/autoplaza/autoplaza/internal/featureflags"
	"github.com/autoplaza/autoplaza/internal/mapsync"
	"github.com/autoplaza/autoplaza/internal/provider/resilience"
	"github.com/autoplaza/autoplaza/internal/station"
)

const testSigningKey = "test-secret-key-for-testing-only"

// stubGeodata returns a fixed feature set, or err when set.
type stubGeodata struct {
	mu       sync.Mutex
	features []station.Feature
	err      error
	queries  []station.Query
}

func (s *stubGeodata) FetchStations(_ context.Context, q station.Query) ([]station.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]station.Feature, len(s.features))
	copy(out, s.features)
	return out, nil
}

func (s *stubGeodata) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type testEnv struct {
	router   http.Handler
	geodata  *stubGeodata
	stations *station.Service
	manager  *mapsync.Manager
	jwt      *auth.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	geodata := &stubGeodata{features: []station.Feature{
		{ID: 1, Lat: 52.37, Lon: 4.89, Properties: station.Properties{Title: "Dam"}},
		{ID: 2, Lat: 52.09, Lon: 5.12, Properties: station.Properties{Title: "Neude"}},
	}}
	stations := station.NewService(station.ServiceConfig{
		Repository: station.NewInMemoryRepository(),
		Logger:     logger,
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})
	coord := mapsync.NewCoordinator(mapsync.CoordinatorConfig{
		Geodata: geodata,
		Store:   stations,
		Flags:   flags,
		Logger:  logger,
	})
	manager := mapsync.NewManager(mapsync.ManagerConfig{
		Coordinator:      coord,
		Flags:            flags,
		Logger:           logger,
		DebounceInterval: 10 * time.Millisecond,
	})
	t.Cleanup(manager.Close)

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://api.autoplaza.nl",
		Audience:   "autoplaza-api",
	})

	registry := resilience.NewRegistry()
	resilience.NewClient(resilience.ClientConfig{Name: "openchargemap", Registry: registry})

	router := api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2024-01-01T00:00:00Z",
		Logger:             logger,
		AllowedOrigins:     []string{"https://map.autoplaza.nl"},
		TokenValidator:     jwtService,
		Stations:           coord,
		Sessions:           manager,
		CustomStations:     stations,
		FeatureFlagService: flags,
		Subsystems: map[string]handler.Pinger{
			"redis": handler.PingFunc(func(context.Context) error { return nil }),
		},
		Registry: registry,
	})

	return &testEnv{
		router:   router,
		geodata:  geodata,
		stations: stations,
		manager:  manager,
		jwt:      jwtService,
	}
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, _, err := e.jwt.GenerateAccessToken(auth.Principal{ID: "usr_test123", Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// sessionState fetches a session without failing the test, for use inside
// assert.Eventually conditions.
func (e *testEnv) sessionState(path string) models.MapSessionState {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var st models.MapSessionState
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	return st
}

func amsterdamViewport() models.Viewport {
	return models.Viewport{
		CenterLat: 52.37,
		CenterLon: 4.89,
		Zoom:      12,
		Bounds:    station.BoundingBox{North: 52.43, West: 4.73, South: 52.30, East: 5.05},
	}
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/ready", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, string(models.HealthStatusOK), health.Details["redis"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/v1/ops/status", nil, env.token(t, auth.RoleViewer))
	require.Equal(t, http.StatusOK, w.Code)

	status := decode[models.SystemStatus](t, w)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "redis", status.Subsystems[0].Name)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "openchargemap", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].Circuit)
	assert.Zero(t, status.Providers[0].Trips)
	assert.Empty(t, status.ActiveDegradationFlags)
}

func TestRouter_ListStations_Country(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/stations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	coll := decode[models.StationCollection](t, w)
	assert.Equal(t, station.ModeCountry, coll.Query.Mode)
	assert.Equal(t, 2, coll.Count)
	assert.Len(t, coll.Markers, 2)
	assert.Len(t, coll.List, 2)
}

func TestRouter_ListStations_CustomFirstInList(t *testing.T) {
	env := newTestEnv(t)

	lat, lon := 52.0, 5.0
	_, err := env.stations.Create(context.Background(), &station.Input{
		Address: "Stationsplein 1", PlugType: "Type 2", PowerKW: 22, Lat: &lat, Lon: &lon,
	})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/stations?mode=bounds&north=53&west=4&south=51&east=6", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	coll := decode[models.StationCollection](t, w)
	assert.Equal(t, station.ModeBounds, coll.Query.Mode)
	require.NotNil(t, coll.Query.Bounds)
	assert.Equal(t, 3, coll.Count)
	assert.Equal(t, 1, coll.CustomCount)
	assert.False(t, coll.Markers[0].Properties.IsCustomStation)
	assert.True(t, coll.Markers[2].Properties.IsCustomStation)
	assert.True(t, coll.List[0].Properties.IsCustomStation)
}

func TestRouter_ListStations_Invalid(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
	}{
		{"unknown mode", "?mode=city"},
		{"missing edges", "?mode=bounds&north=53"},
		{"non-numeric", "?mode=bounds&north=x&west=4&south=51&east=6"},
		{"inverted", "?mode=bounds&north=51&west=4&south=53&east=6"},
		{"not finite", "?mode=bounds&north=NaN&west=4&south=51&east=6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/v1/stations"+tt.query, nil, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			problem := decode[models.Problem](t, w)
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
		})
	}
}

func TestRouter_ListStations_GeodataFailure(t *testing.T) {
	env := newTestEnv(t)
	env.geodata.fail(errors.New("connection reset"))

	w := env.do(t, http.MethodGet, "/v1/stations", nil, "")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	problem := decode[models.Problem](t, w)
	assert.Equal(t, models.ProblemTypeUpstream, problem.Type)
	assert.Equal(t, mapsync.FailureMessage, problem.Detail)
}

func TestRouter_MapSession_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.MapSessionState](t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/v1/map/sessions/"+created.ID, w.Header().Get("Location"))
	assert.True(t, created.AutoSync)

	path := "/v1/map/sessions/" + created.ID
	require.Eventually(t, func() bool {
		st := env.sessionState(path)
		return st.HasLoaded && !st.Loading
	}, 2*time.Second, 10*time.Millisecond)

	st := decode[models.MapSessionState](t, env.do(t, http.MethodGet, path, nil, ""))
	assert.Equal(t, 2, st.Count)
	require.NotNil(t, st.LastQuery)
	assert.Equal(t, station.ModeCountry, st.LastQuery.Mode)

	w = env.do(t, http.MethodDelete, path, nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_MapSession_InvalidViewport(t *testing.T) {
	env := newTestEnv(t)

	vp := amsterdamViewport()
	vp.Bounds.North, vp.Bounds.South = vp.Bounds.South, vp.Bounds.North

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{Viewport: vp}, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.manager.Len())
}

func TestRouter_MapSession_SearchArea(t *testing.T) {
	env := newTestEnv(t)
	autoSync := false

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
		AutoSync: &autoSync,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/v1/map/sessions/" + decode[models.MapSessionState](t, w).ID

	moved := amsterdamViewport()
	moved.Bounds = station.BoundingBox{North: 52.2, West: 4.9, South: 52.0, East: 5.3}
	w = env.do(t, http.MethodPost, path+"/viewport", moved, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	st := decode[models.MapSessionState](t, w)
	assert.True(t, st.PendingSearch)
	require.NotNil(t, st.CandidateBounds)
	assert.Equal(t, moved.Bounds, *st.CandidateBounds)

	w = env.do(t, http.MethodPost, path+"/search-area", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	action := decode[models.MapActionResponse](t, w)
	assert.Equal(t, mapsync.StatusApplied, action.Outcome.Status)
	assert.Equal(t, station.ModeBounds, action.Outcome.Query.Mode)
	assert.False(t, action.State.PendingSearch)
	assert.Equal(t, 2, action.State.Count)
}

func TestRouter_MapSession_SearchAreaWhileAutoSync(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/v1/map/sessions/" + decode[models.MapSessionState](t, w).ID

	w = env.do(t, http.MethodPost, path+"/search-area", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_MapSession_AutoSyncToggle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/v1/map/sessions/" + decode[models.MapSessionState](t, w).ID

	w = env.do(t, http.MethodPut, path+"/auto-sync", map[string]interface{}{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	disabled := false
	w = env.do(t, http.MethodPut, path+"/auto-sync", models.AutoSyncRequest{Enabled: &disabled}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.MapSessionState](t, w).AutoSync)
}

func TestRouter_MapSession_RetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	env.geodata.fail(errors.New("timeout"))

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/v1/map/sessions/" + decode[models.MapSessionState](t, w).ID

	require.Eventually(t, func() bool {
		return env.sessionState(path).Error != nil
	}, 2*time.Second, 10*time.Millisecond)
	failed := decode[models.MapSessionState](t, env.do(t, http.MethodGet, path, nil, ""))
	require.NotNil(t, failed.Error)
	assert.Equal(t, mapsync.FailureMessage, *failed.Error)

	env.geodata.fail(nil)
	w = env.do(t, http.MethodPost, path+"/retry", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	action := decode[models.MapActionResponse](t, w)
	assert.Equal(t, mapsync.StatusApplied, action.Outcome.Status)
	assert.Equal(t, station.ModeCountry, action.Outcome.Query.Mode)
	assert.Nil(t, action.State.Error)
	assert.Equal(t, 2, action.State.Count)
}

func TestRouter_MapSession_LocateWithoutGeolocator(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	path := "/v1/map/sessions/" + decode[models.MapSessionState](t, w).ID

	w = env.do(t, http.MethodPost, path+"/locate", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	st := decode[models.MapSessionState](t, env.do(t, http.MethodGet, path, nil, ""))
	require.NotEmpty(t, st.Toasts)
	assert.Equal(t, mapsync.ToastError, st.Toasts[len(st.Toasts)-1].Kind)
}

func TestRouter_MapSession_UnknownID(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/map/sessions/nope"},
		{http.MethodDelete, "/v1/map/sessions/nope"},
		{http.MethodPost, "/v1/map/sessions/nope/retry"},
	} {
		w := env.do(t, tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, tc.method+" "+tc.path)
	}
}

func TestRouter_MapSession_Stream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	w := env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[models.MapSessionState](t, w).ID

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/map/sessions/" + id + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var st models.MapSessionState
		require.NoError(t, conn.ReadJSON(&st))
		assert.Equal(t, id, st.ID)
		if st.HasLoaded {
			assert.Equal(t, 2, st.Count)
			break
		}
	}

	require.NoError(t, env.manager.Delete(id))
	for err == nil {
		_, _, err = conn.ReadMessage()
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestRouter_CustomStations_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/admin/custom-stations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/v1/admin/custom-stations", nil, env.token(t, auth.RoleViewer))
	assert.Equal(t, http.StatusForbidden, w.Code)
	problem := decode[models.Problem](t, w)
	assert.Equal(t, models.ProblemTypeForbidden, problem.Type)
}

func TestRouter_CustomStations_CRUD(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin)

	lat, lon := 52.1, 5.1
	w := env.do(t, http.MethodPost, "/v1/admin/custom-stations", models.CustomStationRequest{
		Address:  "Croeselaan 1, Utrecht",
		PlugType: "CCS",
		PowerKW:  150,
		Lat:      &lat,
		Lon:      &lon,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.CustomStation](t, w)
	assert.True(t, created.Placeable)
	path := "/v1/admin/custom-stations/" + created.ID
	assert.Equal(t, path, w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/v1/admin/custom-stations", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.PagedCustomStations](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)

	w = env.do(t, http.MethodPut, path, models.CustomStationRequest{
		Address:  "Croeselaan 2, Utrecht",
		PlugType: "CCS",
		PowerKW:  300,
	}, token)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[models.CustomStation](t, w)
	assert.Equal(t, "Croeselaan 2, Utrecht", updated.Address)
	assert.False(t, updated.Placeable)

	w = env.do(t, http.MethodDelete, path, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, path, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CustomStations_CreateUnratedPower(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/admin/custom-stations", models.CustomStationRequest{
		Address:  "Stationsplein 1, Amersfoort",
		PlugType: "Type 2",
	}, env.token(t, auth.RoleAdmin))

	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[models.CustomStation](t, w)
	assert.Zero(t, created.PowerKW)
}

func TestRouter_CustomStations_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	lat := 95.0

	w := env.do(t, http.MethodPost, "/v1/admin/custom-stations", models.CustomStationRequest{
		PowerKW: -1,
		Lat:     &lat,
	}, env.token(t, auth.RoleAdmin))

	require.Equal(t, http.StatusBadRequest, w.Code)
	problem := decode[models.Problem](t, w)
	fields := make([]string, 0, len(problem.Errors))
	for _, fe := range problem.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "address")
	assert.Contains(t, fields, "plugType")
	assert.Contains(t, fields, "powerKw")
	assert.Contains(t, fields, "lat")
}

func TestRouter_FeatureFlags(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin)

	w := env.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[featureflags.FlagList](t, w)
	assert.Len(t, list.Items, len(featureflags.DefaultFlags()))

	w = env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: "no_such_flag", Value: true}},
	}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{{Key: featureflags.FlagMapAutoSyncDefault, Value: false}},
		Reason:  "pilot",
	}, token)
	require.Equal(t, http.StatusOK, w.Code)

	// New sessions pick up the flag.
	w = env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, decode[models.MapSessionState](t, w).AutoSync)

	w = env.do(t, http.MethodGet, "/v1/admin/feature-flags", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	for _, f := range decode[featureflags.FlagList](t, w).Items {
		if f.Key == featureflags.FlagMapAutoSyncDefault {
			assert.Equal(t, false, f.Value)
			assert.NotEmpty(t, f.UpdatedBy)
			assert.Equal(t, "pilot", f.Reason)
		}
	}

	w = env.do(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagMapAutoSyncDefault, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/v1/map/sessions", models.CreateMapSessionRequest{
		Viewport: amsterdamViewport(),
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, decode[models.MapSessionState](t, w).AutoSync)

	w = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/no_such_flag", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_FeatureFlags_RejectsWrongType(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin)

	w := env.do(t, http.MethodPut, "/v1/admin/feature-flags", featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{
			{Key: featureflags.FlagDisableCustomStations, Value: true},
			{Key: featureflags.FlagGeodataMaxResults, Value: "lots"},
		},
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)

	problem := decode[models.Problem](t, w)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "updates[1]", problem.Errors[0].Field)
}

func TestRouter_CORS(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/stations", http.NoBody)
	req.Header.Set("Origin", "https://map.autoplaza.nl")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "https://map.autoplaza.nl", w.Header().Get("Access-Control-Allow-Origin"))
}
