package services

import (
	"fmt"
	"partner-registry/internal/domain"
	"partner-registry/internal/normalize"
	"partner-registry/internal/platform/obs"
	"slices"
	"strings"
)

// Validator reports anomalies without touching the registry.
type Validator struct {
	metrics *obs.Metrics
}

func NewValidator(metrics *obs.Metrics) *Validator {
	return &Validator{metrics: metrics}
}

// Check returns findings in record order; within a record, in the order
// missing-location, missing-coordinates, out-of-range-coordinates,
// orphan-membership (by project id), no-membership, duplicate-institution.
//
// A duplicate is reported on every record whose normalized name was already
// seen, naming the first holder.
func (v *Validator) Check(reg *domain.Registry) []domain.Finding {
	var out []domain.Finding
	firstByKey := make(map[string]string, reg.Len())

	for _, rec := range reg.Records {
		add := func(code domain.FindingCode, detail string) {
			out = append(out, domain.Finding{Institution: rec.Institution, Code: code, Detail: detail})
		}

		if strings.TrimSpace(rec.City) == "" || strings.TrimSpace(rec.Country) == "" {
			add(domain.FindingMissingLocation, fmt.Sprintf("city=%q country=%q", rec.City, rec.Country))
		}

		switch {
		case rec.Coordinates == nil:
			add(domain.FindingMissingCoordinates, "no coordinate pair")
		case !rec.Coordinates.InRange():
			add(domain.FindingOutOfRangeCoordinates, fmt.Sprintf("lat=%v lon=%v", rec.Coordinates.Lat, rec.Coordinates.Lon))
		}

		var orphans []string
		for p, flagged := range rec.Projects {
			if flagged && !reg.HasProject(p) {
				orphans = append(orphans, p)
			}
		}
		slices.Sort(orphans)
		for _, p := range orphans {
			add(domain.FindingOrphanMembership, fmt.Sprintf("flagged for unrecognized project %q", p))
		}

		if !rec.IsFunder && len(rec.MemberOf(reg.Projects)) == 0 {
			add(domain.FindingNoMembership, "not a funder and in no recognized project")
		}

		key := normalize.IdentityKey(rec.Institution)
		if first, ok := firstByKey[key]; ok {
			add(domain.FindingDuplicateInstitution, fmt.Sprintf("same normalized name as %q", first))
		} else {
			firstByKey[key] = rec.Institution
		}
	}

	v.metrics.SetFindings(summaryByName(out))
	return out
}

// Summarize counts findings by code.
func Summarize(findings []domain.Finding) map[domain.FindingCode]int {
	out := make(map[domain.FindingCode]int)
	for _, f := range findings {
		out[f.Code]++
	}
	return out
}

func summaryByName(findings []domain.Finding) map[string]int {
	out := make(map[string]int)
	for code, n := range Summarize(findings) {
		out[string(code)] = n
	}
	return out
}
