package handlers

import (
	"log"
	"net/http"
	"partner-registry/internal/ports"
)

type HealthHandler struct {
	Store ports.RegistryStore
}

// Health reports whether the registry table can be loaded, and its size.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	reg, err := h.Store.Load(r.Context())
	if err != nil {
		log.Printf("health: load registry: %v", err)
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":   "ok",
		"records":  reg.Len(),
		"projects": len(reg.Projects),
	})
}
