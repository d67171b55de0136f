package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/store"
)

type fakeReader struct {
	specs  map[int64]store.SpecProjection
	groups map[[2]int64]store.GroupProjection
	err    error
}

func (f *fakeReader) SpecByID(_ context.Context, specID int64) (store.SpecProjection, error) {
	if f.err != nil {
		return store.SpecProjection{}, f.err
	}
	proj, ok := f.specs[specID]
	if !ok {
		return store.SpecProjection{}, store.ErrNotFound
	}
	return proj, nil
}

func (f *fakeReader) GroupByPair(_ context.Context, definitionID, buildKitID int64) (store.GroupProjection, error) {
	if f.err != nil {
		return store.GroupProjection{}, f.err
	}
	proj, ok := f.groups[[2]int64{definitionID, buildKitID}]
	if !ok {
		return store.GroupProjection{}, store.ErrNotFound
	}
	return proj, nil
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyzChecksPinger(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, &fakePinger{}, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	s = NewServer(&fakeReader{}, &fakePinger{err: errors.New("connection refused")}, zap.NewNop())
	rec = doRequest(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyzWithoutPinger(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsExposesPrometheus(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetSpec(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{specs: map[int64]store.SpecProjection{
		7: {
			SpecID:     7,
			SizeLabel:  "M",
			StackMM:    566,
			ReachMM:    370,
			Definition: "Domane AL 2 Aluminum",
			Material:   "Aluminum",
			BrandName:  "trek",
			FamilyName: "Domane",
			Category:   "szosowe",
		},
	}}
	s := NewServer(reader, nil, zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/v1/specs/7")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload specPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, int64(7), payload.SpecID)
	require.Equal(t, "M", payload.SizeLabel)
	require.Equal(t, 566, payload.StackMM)
	require.Equal(t, "trek", payload.BrandName)
}

func TestGetSpecNotFound(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/v1/specs/99")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSpecBadID(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/v1/specs/seven")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSpecStoreError(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{err: errors.New("boom")}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/v1/specs/7")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetGroup(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{groups: map[[2]int64]store.GroupProjection{
		{3, 5}: {
			DefinitionID: 3,
			BuildKitID:   5,
			Definition:   "Esker 1.0",
			BrandName:    "kross",
			FamilyName:   "Esker",
			Category:     "gravel",
			KitName:      "Shimano GRX RX400",
			SKUs:         []string{"KROSS-ESKER-1.0-2024-SHIMANO-GRX-RX400-M"},
			Sizes:        []string{"M", "L"},
			Colors:       []string{"Black"},
		},
	}}
	s := NewServer(reader, nil, zap.NewNop())

	rec := doRequest(t, s, http.MethodGet, "/v1/groups/3/5")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload groupPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "Shimano GRX RX400", payload.KitName)
	require.Equal(t, []string{"M", "L"}, payload.Sizes)
}

func TestGetGroupNotFound(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeReader{}, nil, zap.NewNop())
	rec := doRequest(t, s, http.MethodGet, "/v1/groups/3/5")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
