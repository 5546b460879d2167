package handlers

import (
	"net/http"
	"partner-registry/internal/api/dto"
	"partner-registry/internal/domain"
	"partner-registry/internal/ports"
	"strings"
)

// PartnerHandler exposes read-only registry endpoints.
type PartnerHandler struct {
	Store   ports.RegistryStore
	Catalog *domain.ProjectCatalog
}

// List returns all partners, or only members of ?project=.
func (h *PartnerHandler) List(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	reg, err := h.Store.Load(r.Context())
	if err != nil {
		internalError(w, r, "load registry", err)
		return
	}

	project := strings.TrimSpace(r.URL.Query().Get("project"))
	if project != "" && !reg.HasProject(project) {
		writeError(w, r, http.StatusNotFound, "unknown project")
		return
	}

	res := dto.ListPartnersResponse{Partners: make([]dto.PartnerResponse, 0, reg.Len())}
	for _, rec := range reg.Records {
		if project != "" && !rec.InProject(project) {
			continue
		}
		p := dto.PartnerResponse{
			Institution: rec.Institution,
			City:        rec.City,
			Country:     rec.Country,
			Funder:      rec.IsFunder,
			Projects:    rec.MemberOf(reg.Projects),
			FormerNames: rec.FormerNames,
		}
		if rec.Coordinates != nil {
			p.Coordinates = &dto.CoordinatesResponse{Lat: rec.Coordinates.Lat, Lon: rec.Coordinates.Lon}
		}
		res.Partners = append(res.Partners, p)
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Projects returns the catalog with member counts, funders excluded. Projects
// recognized by the registry but absent from the catalog are listed with
// their id only.
func (h *PartnerHandler) Projects(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	reg, err := h.Store.Load(r.Context())
	if err != nil {
		internalError(w, r, "load registry", err)
		return
	}

	res := dto.ListProjectsResponse{Projects: make([]dto.ProjectResponse, 0, len(reg.Projects))}
	if h.Catalog != nil {
		res.CatalogVersion = h.Catalog.Version
	}
	for _, id := range reg.Projects {
		p := dto.ProjectResponse{ID: id, DisplayName: id}
		if meta, ok := h.Catalog.Lookup(id); ok {
			p.DisplayName, p.Color = meta.DisplayName, meta.Color
		}
		for _, rec := range reg.Records {
			if !rec.IsFunder && rec.InProject(id) {
				p.Members++
			}
		}
		res.Projects = append(res.Projects, p)
	}

	writeJSON(w, r, http.StatusOK, res)
}
