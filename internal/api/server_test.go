package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/storage/memory"
	"github.com/metaltracker/parser-service/internal/store"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type apiFixture struct {
	sessions  *memory.SessionStore
	catalogue *memory.CatalogueStore
	server    *Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	sessions := memory.NewSessionStore()
	catalogue := memory.NewCatalogueStore()
	return &apiFixture{
		sessions:  sessions,
		catalogue: catalogue,
		server:    NewServer(sessions, catalogue, zap.NewNop()),
	}
}

func (f *apiFixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestListSessionsFiltersByDistributor(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	osmose, err := f.sessions.GetOrCreateIncomplete(ctx, parser.DistributorOsmoseProductions)
	require.NoError(t, err)
	_, err = f.sessions.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions?distributor=osmose_productions")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.EqualValues(t, 1, body["count"])
	sessions := body["sessions"].([]any)
	require.Len(t, sessions, 1)
	got := sessions[0].(map[string]any)
	require.Equal(t, osmose.ID.String(), got["id"])
	require.Equal(t, "osmose_productions", got["distributor_code"])
	require.Equal(t, "incomplete", got["status"])
}

func TestListSessionsRejectsUnknownDistributor(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions?distributor=nuclear_blast")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSessionsRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions?status=archived")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	sess, err := f.sessions.GetOrCreateIncomplete(context.Background(), parser.DistributorDrakkar)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody(t, rec)["session"].(map[string]any)
	require.Equal(t, sess.ID.String(), got["id"])
	require.Equal(t, "drakkar", got["distributor_code"])
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSessionBadID(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailSession(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.GetOrCreateIncomplete(ctx, parser.DistributorSeasonOfMist)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/fail")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "failed", decodeBody(t, rec)["status"])

	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionFailed, got.Status)

	// A failed session is terminal, so the next run gets a fresh one.
	next, err := f.sessions.GetOrCreateIncomplete(ctx, parser.DistributorSeasonOfMist)
	require.NoError(t, err)
	require.NotEqual(t, sess.ID, next.ID)
}

func TestFailSessionAlreadyTerminal(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.GetOrCreateIncomplete(ctx, parser.DistributorDrakkar)
	require.NoError(t, err)
	require.NoError(t, f.sessions.UpdateStatus(ctx, sess.ID, store.SessionParsed))
	require.NoError(t, f.sessions.UpdateStatus(ctx, sess.ID, store.SessionPublished))

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/fail")
	require.Equal(t, http.StatusConflict, rec.Code)

	got, err := f.sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, store.SessionPublished, got.Status)
}

func TestFailSessionNotFound(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/sessions/"+uuid.NewString()+"/fail")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCatalogue(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	saved, err := f.catalogue.Upsert(ctx, store.CatalogueEntry{
		DistributorCode: parser.DistributorOsmoseProductions,
		BandName:        "Nokturnal Mortum",
		AlbumTitle:      "Goat Horns",
		RawTitle:        "NOKTURNAL MORTUM - Goat Horns CD",
		DetailURL:       "https://osmoseproductions.com/goat-horns",
		Status:          store.CatalogueNew,
	})
	require.NoError(t, err)
	require.NoError(t, f.catalogue.UpdateStatus(ctx, saved.ID, store.CatalogueRelevant))

	_, err = f.catalogue.Upsert(ctx, store.CatalogueEntry{
		DistributorCode: parser.DistributorOsmoseProductions,
		BandName:        "Unknown Band",
		AlbumTitle:      "Demo",
		DetailURL:       "https://osmoseproductions.com/demo",
		Status:          store.CatalogueNotRelevant,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/catalogue?distributor=osmose_productions&status=relevant")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.EqualValues(t, 1, body["count"])
	entry := body["entries"].([]any)[0].(map[string]any)
	require.Equal(t, saved.ID.String(), entry["id"])
	require.Equal(t, "Nokturnal Mortum", entry["band_name"])
	require.Equal(t, "relevant", entry["status"])
}

func TestListCatalogueByBandName(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.catalogue.Upsert(ctx, store.CatalogueEntry{
		DistributorCode: parser.DistributorDrakkar,
		BandName:        "Mgla",
		AlbumTitle:      "Exercises in Futility",
		DetailURL:       "https://drakkar.example/mgla",
		Status:          store.CatalogueNew,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/catalogue?band=MGLA")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestListCataloguePagination(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)
	ctx := context.Background()

	urls := []string{"/a", "/b", "/c"}
	for _, u := range urls {
		_, err := f.catalogue.Upsert(ctx, store.CatalogueEntry{
			DistributorCode: parser.DistributorDrakkar,
			BandName:        "Band",
			AlbumTitle:      "Album",
			DetailURL:       "https://drakkar.example" + u,
			Status:          store.CatalogueNew,
		})
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/catalogue?limit=2")
	require.EqualValues(t, 2, decodeBody(t, rec)["count"])

	rec = f.do(t, http.MethodGet, "/api/v1/catalogue?limit=2&offset=2")
	require.EqualValues(t, 1, decodeBody(t, rec)["count"])
}

func TestPaginationRejectsBadValues(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	for _, target := range []string{
		"/api/v1/catalogue?limit=0",
		"/api/v1/catalogue?limit=abc",
		"/api/v1/sessions?offset=-1",
	} {
		rec := f.do(t, http.MethodGet, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
