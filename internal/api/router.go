package api

import (
	"net/http"
	"partner-registry/internal/api/handlers"
	"partner-registry/internal/domain"
	"partner-registry/internal/ports"
	"partner-registry/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Store     ports.RegistryStore
	Catalog   *domain.ProjectCatalog
	Validator *services.Validator
	Patches   *services.PatchEngine
	Gatherer  prometheus.Gatherer
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// The view is read-only: no handler writes to the store.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	health := &handlers.HealthHandler{Store: d.Store}
	partners := &handlers.PartnerHandler{Store: d.Store, Catalog: d.Catalog}
	findings := &handlers.FindingsHandler{Store: d.Store, Validator: d.Validator, Patches: d.Patches}

	mux.HandleFunc("/health", health.Health)
	mux.HandleFunc("/partners", partners.List)
	mux.HandleFunc("/projects", partners.Projects)
	mux.HandleFunc("/findings", findings.Findings)
	mux.HandleFunc("/patches/preview", findings.Preview)
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return requestMiddleware(mux)
}
