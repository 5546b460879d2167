package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"partner-registry/internal/api/dto"
	"partner-registry/internal/domain"
	"partner-registry/internal/platform/obs"
	"partner-registry/internal/services"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type memStore struct{ reg *domain.Registry }

func (m *memStore) Load(context.Context) (*domain.Registry, error) { return m.reg.Clone(), nil }
func (m *memStore) Save(_ context.Context, reg *domain.Registry) error {
	m.reg = reg.Clone()
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *memStore) {
	t.Helper()
	reg := domain.NewRegistry([]string{"CHAMNHA", "HEAT"})
	reg.Upsert(&domain.PartnerRecord{
		Institution: "Aga Khan University", City: "Nairobi", Country: "Kenya",
		Projects:    map[string]bool{"CHAMNHA": true},
		Coordinates: &domain.Coordinates{Lat: -1.286389, Lon: 36.817223},
	})
	reg.Upsert(&domain.PartnerRecord{Institution: "Ghent University", City: "Ghent", Country: "Belgium", Projects: map[string]bool{"HEAT": true}})
	reg.Upsert(&domain.PartnerRecord{
		Institution: "Wellcome Trust", City: "London", Country: "United Kingdom",
		IsFunder: true, Projects: map[string]bool{"CHAMNHA": true},
		Coordinates: &domain.Coordinates{Lat: 51.507351, Lon: -0.127758},
	})
	store := &memStore{reg: reg}

	promReg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(promReg)

	return NewRouter(Deps{
		Store:     store,
		Catalog:   domain.DefaultCatalog(),
		Validator: services.NewValidator(metrics),
		Patches:   services.NewPatchEngine(metrics),
		Gatherer:  promReg,
	}), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"records":3`) {
		t.Fatalf("body = %s, want record count", rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id header missing")
	}
	if rec := do(t, h, http.MethodPost, "/health", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	} else if rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("Allow = %q", rec.Header().Get("Allow"))
	}
}

func TestPartnersFilterByProject(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/partners?project=CHAMNHA", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var res dto.ListPartnersResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Partners) != 2 || res.Partners[0].Institution != "Aga Khan University" {
		t.Fatalf("partners = %+v", res.Partners)
	}
	if res.Partners[0].Coordinates == nil || res.Partners[0].Funder {
		t.Fatalf("partner = %+v", res.Partners[0])
	}
	if !res.Partners[1].Funder {
		t.Fatalf("funder flag missing: %+v", res.Partners[1])
	}

	if rec := do(t, h, http.MethodGet, "/partners?project=NOPE", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProjectsIncludeCatalogMetadata(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/projects", "")
	var res dto.ListProjectsResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.CatalogVersion != 2 || len(res.Projects) != 2 {
		t.Fatalf("projects = %+v", res)
	}
	// Wellcome Trust is a CHAMNHA funder and is not counted
	if res.Projects[0].Color != "#0077BB" || res.Projects[0].Members != 1 {
		t.Fatalf("CHAMNHA = %+v", res.Projects[0])
	}
}

func TestFindingsAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/findings", "")
	var res dto.FindingsResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Summary["missing-coordinates"] != 1 {
		t.Fatalf("summary = %v, want one missing-coordinates", res.Summary)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `partners_validation_findings{code="missing-coordinates"} 1`) {
		t.Fatalf("metrics missing findings gauge:\n%s", rec.Body.String())
	}
}

func TestPreviewDoesNotSave(t *testing.T) {
	h, store := newTestRouter(t)
	before := store.reg.Clone()

	body := `{"patches":[{"op":"set-coordinates","institution":"Ghent University","lat":51.054342,"lon":3.717424}]}`
	rec := do(t, h, http.MethodPost, "/patches/preview", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res dto.PreviewPatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Results) != 1 || !res.Results[0].Changed {
		t.Fatalf("results = %+v", res.Results)
	}
	if len(res.Findings) != 0 {
		t.Fatalf("findings = %+v, want none after fix", res.Findings)
	}
	if !store.reg.Equal(before) {
		t.Fatal("preview modified the store")
	}

	rec = do(t, h, http.MethodPost, "/patches/preview", `{"patches":[{"op":"set-membership","institution":"Nobody","project":"HEAT","value":true}]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/patches/preview", `{"patches":[],"extra":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
