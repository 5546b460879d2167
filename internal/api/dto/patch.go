package dto

import "partner-registry/internal/domain"

type PreviewPatchRequest struct {
	Patches []domain.PatchOperation `json:"patches"`
}

type PatchResultResponse struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Changed bool   `json:"changed"`
}

type PreviewPatchResponse struct {
	Results  []PatchResultResponse `json:"results"`
	Findings []domain.Finding      `json:"findings"`
}

type FindingsResponse struct {
	Findings []domain.Finding `json:"findings"`
	Summary  map[string]int   `json:"summary"`
}
