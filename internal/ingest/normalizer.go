// Package ingest maps raw heterogeneous partner tables into the canonical
// registry schema. Every source, including rows produced by document
// extraction, enters the store through Normalizer.Normalize.
package ingest

import (
	"cmp"
	"maps"
	"partner-registry/internal/domain"
	"partner-registry/internal/normalize"
	"partner-registry/internal/registry"
	"slices"
	"strconv"
	"strings"
)

// headerAliases maps lower-cased, underscored headers to canonical columns.
var headerAliases = map[string]string{
	"institution":      registry.ColInstitution,
	"institution_name": registry.ColInstitution,
	"partner":          registry.ColInstitution,
	"city":             registry.ColCity,
	"country":          registry.ColCountry,
	"funder":           registry.ColFunder,
	"is_funder":        registry.ColFunder,
	"lat":              registry.ColLat,
	"latitude":         registry.ColLat,
	"lon":              registry.ColLon,
	"lng":              registry.ColLon,
	"long":             registry.ColLon,
	"longitude":        registry.ColLon,
	"former_names":     registry.ColFormerNames,
}

// Normalizer converts raw rows into canonical partner records.
type Normalizer struct {
	catalog *domain.ProjectCatalog
}

func NewNormalizer(catalog *domain.ProjectCatalog) *Normalizer {
	return &Normalizer{catalog: catalog}
}

// Normalize canonicalizes headers and cells of t and decodes it.
//
// Headers are trimmed, underscored and matched case-insensitively to core
// columns and catalog projects. Cells get the encoding-fix table; cities are
// title-cased; institution names go through the canonicalization table;
// coordinates are kept to six decimals, and non-numeric coordinates become
// absent rather than failing the row. Output is sorted by (Country, City).
func (n *Normalizer) Normalize(t registry.Table) (*domain.Registry, error) {
	canon := registry.Table{
		Header: make([]string, len(t.Header)),
		Rows:   make([][]string, 0, len(t.Rows)),
	}
	for i, h := range t.Header {
		canon.Header[i] = n.canonicalHeader(h)
	}

	cityCol := canon.Column(registry.ColCity)
	instCol := canon.Column(registry.ColInstitution)
	latCol := canon.Column(registry.ColLat)
	lonCol := canon.Column(registry.ColLon)

	for _, row := range t.Rows {
		out := make([]string, len(canon.Header))
		for j := range out {
			if j < len(row) {
				out[j] = normalize.FixEncoding(strings.TrimSpace(row[j]))
			}
		}

		if instCol >= 0 {
			out[instCol] = normalize.CanonicalInstitution(out[instCol])
		}
		if cityCol >= 0 {
			out[cityCol] = normalize.TitleCase(out[cityCol])
		}
		if latCol >= 0 && lonCol >= 0 {
			out[latCol], out[lonCol] = coordinateCells(out[latCol], out[lonCol])
		}

		canon.Rows = append(canon.Rows, out)
	}

	reg, err := registry.Decode(canon, n.catalog)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(reg.Records, func(a, b *domain.PartnerRecord) int {
		return cmp.Or(cmp.Compare(a.Country, b.Country), cmp.Compare(a.City, b.City))
	})
	return reg, nil
}

// Merge upserts the records of incoming into a copy of base. Values already
// known are never erased: coordinates, city and country are kept when the
// incoming row leaves them blank, and project memberships are OR-ed.
// Projects recognized by incoming but not base are added to base, except
// projects base has dropped, which are stripped from incoming records.
func (n *Normalizer) Merge(base, incoming *domain.Registry) *domain.Registry {
	out := base.Clone()
	for _, p := range incoming.Projects {
		if !slices.Contains(out.Dropped, p) {
			out.AddProject(p)
		}
	}

	for _, in := range incoming.Records {
		rec := in.Clone()
		for _, p := range out.Dropped {
			delete(rec.Projects, p)
		}
		if prev, ok := out.Get(rec.Institution); ok {
			if rec.Coordinates == nil && prev.Coordinates != nil {
				c := *prev.Coordinates
				rec.Coordinates = &c
			}
			if rec.City == "" {
				rec.City = prev.City
			}
			if rec.Country == "" {
				rec.Country = prev.Country
			}
			rec.IsFunder = rec.IsFunder || prev.IsFunder
			for p, v := range prev.Projects {
				rec.Projects[p] = rec.Projects[p] || v
			}
			if len(prev.Attributes) > 0 {
				attrs := maps.Clone(prev.Attributes)
				maps.Copy(attrs, rec.Attributes)
				rec.Attributes = attrs
			}
			rec.FormerNames = mergeNames(prev.FormerNames, rec.FormerNames)
		}
		out.Upsert(rec)
	}

	for _, c := range incoming.Columns {
		if !slices.Contains(out.Columns, c) && len(out.Columns) > 0 {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// CandidateRows builds the raw table produced by document-extraction
// collaborators: institution names with every other field blank.
func CandidateRows(names []string) registry.Table {
	t := registry.Table{Header: []string{registry.ColInstitution, registry.ColCity, registry.ColCountry}}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t.Rows = append(t.Rows, []string{name, "", ""})
	}
	return t
}

func (n *Normalizer) canonicalHeader(h string) string {
	key := normalize.HeaderKey(normalize.FixEncoding(h))
	if c, ok := headerAliases[strings.ToLower(key)]; ok {
		return c
	}
	if id, ok := n.catalog.Match(key); ok {
		return id
	}
	return key
}

// coordinateCells returns both cells formatted to six decimals, or both blank
// when either is missing or non-numeric.
func coordinateCells(lat, lon string) (string, string) {
	c := registry.ParseCoordinates(lat, lon)
	if c == nil {
		return "", ""
	}
	return strconv.FormatFloat(c.Lat, 'f', domain.CoordinatePrecision, 64),
		strconv.FormatFloat(c.Lon, 'f', domain.CoordinatePrecision, 64)
}

func mergeNames(a, b []string) []string {
	out := slices.Clone(a)
	for _, n := range b {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
