package handlers

import (
	"errors"
	"net/http"
	"partner-registry/internal/api/dto"
	"partner-registry/internal/domain"
	"partner-registry/internal/ports"
	"partner-registry/internal/services"
)

type FindingsHandler struct {
	Store     ports.RegistryStore
	Validator *services.Validator
	Patches   *services.PatchEngine
}

// Findings runs the validator over the stored registry.
func (h *FindingsHandler) Findings(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	reg, err := h.Store.Load(r.Context())
	if err != nil {
		internalError(w, r, "load registry", err)
		return
	}

	findings := h.Validator.Check(reg)
	res := dto.FindingsResponse{
		Findings: findings,
		Summary:  make(map[string]int),
	}
	if res.Findings == nil {
		res.Findings = []domain.Finding{}
	}
	for code, n := range services.Summarize(findings) {
		res.Summary[string(code)] = n
	}

	writeJSON(w, r, http.StatusOK, res)
}

// Preview applies a patch sequence to a copy of the stored registry and
// returns the per-operation outcome and resulting findings. Nothing is saved.
func (h *FindingsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req dto.PreviewPatchRequest
	if err := decodeStrict(r, &req); err != nil {
		if errors.Is(err, errExtraJSON) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Patches) == 0 {
		writeError(w, r, http.StatusBadRequest, "patches is required")
		return
	}

	reg, err := h.Store.Load(r.Context())
	if err != nil {
		internalError(w, r, "load registry", err)
		return
	}

	out, report, err := h.Patches.Apply(reg, req.Patches)
	if err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res := dto.PreviewPatchResponse{
		Results:  make([]dto.PatchResultResponse, 0, len(report.Results)),
		Findings: h.Validator.Check(out),
	}
	if res.Findings == nil {
		res.Findings = []domain.Finding{}
	}
	for _, pr := range report.Results {
		res.Results = append(res.Results, dto.PatchResultResponse{
			Index:   pr.Index,
			Op:      pr.Op.String(),
			Changed: pr.Changed,
		})
	}

	writeJSON(w, r, http.StatusOK, res)
}
