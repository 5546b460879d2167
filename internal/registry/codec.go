package registry

import (
	"fmt"
	"maps"
	"math"
	"partner-registry/internal/domain"
	"partner-registry/internal/normalize"
	"slices"
	"strconv"
	"strings"
)

// Core column names of the persisted registry.
const (
	ColInstitution = "Institution"
	ColCity        = "City"
	ColCountry     = "Country"
	ColFunder      = "Funder"
	ColLat         = "lat"
	ColLon         = "lon"
	ColFormerNames = "Former_Names"
)

const formerNamesSep = ";"

type columnKind int

const (
	kindInstitution columnKind = iota
	kindCity
	kindCountry
	kindFunder
	kindLat
	kindLon
	kindFormerNames
	kindProject
	kindAttribute
)

var coreKinds = map[string]columnKind{
	ColInstitution: kindInstitution,
	ColCity:        kindCity,
	ColCountry:     kindCountry,
	ColFunder:      kindFunder,
	ColLat:         kindLat,
	ColLon:         kindLon,
	ColFormerNames: kindFormerNames,
}

// Decode loads a registry from a raw table.
//
// Every cell passes through normalize.FixEncoding first. A non-core column is a
// project column when the catalog names it or when every non-blank value is
// boolean-like; anything else is carried as an attribute. With a catalog, the
// recognized set is the catalog's, and catalog projects missing from the table
// default to false. Without one, the recognized set is the table's project
// columns. Decode fails with *domain.SchemaError on a missing institution or a
// non-boolean Funder/project value.
func Decode(t Table, catalog *domain.ProjectCatalog) (*domain.Registry, error) {
	return DecodeWith(t, catalog, nil)
}

// DecodeWith is Decode for a table saved together with its project set. The
// recognized set is set.Resolve(catalog): ids added by add-project stay
// recognized and dropped ids are not brought back by the catalog. A nil set
// behaves like Decode.
func DecodeWith(t Table, catalog *domain.ProjectCatalog, set *domain.ProjectSet) (*domain.Registry, error) {
	header := make([]string, len(t.Header))
	seen := make(map[string]struct{}, len(t.Header))
	for i, h := range t.Header {
		h = normalize.FixEncoding(strings.TrimSpace(h))
		if _, dup := seen[h]; dup {
			return nil, &domain.SchemaError{Reason: fmt.Sprintf("duplicate column %q", h)}
		}
		seen[h] = struct{}{}
		header[i] = h
	}
	if _, ok := seen[ColInstitution]; !ok {
		return nil, &domain.SchemaError{Reason: "missing Institution column"}
	}

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		fixed := make([]string, len(header))
		for j := range header {
			if j < len(row) {
				fixed[j] = normalize.FixEncoding(strings.TrimSpace(row[j]))
			}
		}
		rows[i] = fixed
	}

	var persisted []string
	if set != nil {
		persisted = set.Resolve(catalog)
	}

	kinds := make([]columnKind, len(header))
	var tableProjects []string
	for j, h := range header {
		if k, ok := coreKinds[h]; ok {
			kinds[j] = k
			continue
		}
		_, known := catalog.Lookup(h)
		if known || slices.Contains(persisted, h) || booleanColumn(rows, j) {
			kinds[j] = kindProject
			tableProjects = append(tableProjects, h)
			continue
		}
		kinds[j] = kindAttribute
	}

	recognized := tableProjects
	switch {
	case set != nil:
		recognized = persisted
	case catalog != nil:
		recognized = catalog.IDs()
	}

	reg := &domain.Registry{
		Projects: slices.Clone(recognized),
		Columns:  header,
		Records:  make([]*domain.PartnerRecord, 0, len(rows)),
	}
	if set != nil {
		reg.Dropped = slices.Clone(set.Dropped)
	}

	for i, row := range rows {
		rec := &domain.PartnerRecord{Projects: make(map[string]bool, len(recognized))}
		for _, p := range recognized {
			rec.Projects[p] = false
		}

		var lat, lon string
		for j, cell := range row {
			switch kinds[j] {
			case kindInstitution:
				rec.Institution = cell
			case kindCity:
				rec.City = cell
			case kindCountry:
				rec.Country = cell
			case kindFunder:
				v, ok := parseBool(cell)
				if !ok {
					return nil, &domain.SchemaError{Row: i + 1, Column: header[j], Value: cell, Reason: "not a boolean"}
				}
				rec.IsFunder = v
			case kindLat:
				lat = cell
			case kindLon:
				lon = cell
			case kindFormerNames:
				rec.FormerNames = splitFormerNames(cell)
			case kindProject:
				v, ok := parseBool(cell)
				if !ok {
					return nil, &domain.SchemaError{Row: i + 1, Column: header[j], Value: cell, Reason: "not a boolean"}
				}
				rec.Projects[header[j]] = v
			case kindAttribute:
				if cell != "" {
					if rec.Attributes == nil {
						rec.Attributes = map[string]string{}
					}
					rec.Attributes[header[j]] = cell
				}
			}
		}

		if rec.Institution == "" {
			return nil, &domain.SchemaError{Row: i + 1, Column: ColInstitution, Reason: "institution must not be empty"}
		}
		rec.Coordinates = ParseCoordinates(lat, lon)
		reg.Records = append(reg.Records, rec)
	}

	return reg, nil
}

// Encode renders the registry as a table. The prior column order is kept,
// including columns that hold no values; columns the registry now needs are
// added, new projects after the last project column and anything else at the
// end. Dropped projects leave Columns through Registry.DropProject.
func Encode(reg *domain.Registry) Table {
	projects, orphans, attrs, lineage := columnsNeeded(reg)

	var cols []string
	if len(reg.Columns) == 0 {
		cols = slices.Concat([]string{ColInstitution, ColCity, ColCountry, ColFunder}, projects, orphans, attrs)
		if lineage {
			cols = append(cols, ColFormerNames)
		}
		cols = append(cols, ColLat, ColLon)
	} else {
		cols = layout(reg.Columns, slices.Concat(projects, orphans), attrs, lineage)
	}

	isProject := make(map[string]bool, len(projects)+len(orphans))
	for _, p := range slices.Concat(projects, orphans) {
		isProject[p] = true
	}

	t := Table{Header: cols, Rows: make([][]string, 0, len(reg.Records))}
	for _, r := range reg.Records {
		row := make([]string, len(cols))
		for j, c := range cols {
			switch {
			case c == ColInstitution:
				row[j] = r.Institution
			case c == ColCity:
				row[j] = r.City
			case c == ColCountry:
				row[j] = r.Country
			case c == ColFunder:
				row[j] = formatBool(r.IsFunder)
			case c == ColLat:
				if r.Coordinates != nil {
					row[j] = formatCoord(r.Coordinates.Lat)
				}
			case c == ColLon:
				if r.Coordinates != nil {
					row[j] = formatCoord(r.Coordinates.Lon)
				}
			case c == ColFormerNames:
				row[j] = strings.Join(r.FormerNames, formerNamesSep)
			case isProject[c]:
				row[j] = formatBool(r.Projects[c])
			default:
				row[j] = r.Attributes[c]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ParseCoordinates parses a lat/lon pair. Any blank or non-numeric half makes
// the pair absent; values are rounded to six decimal places.
func ParseCoordinates(lat, lon string) *domain.Coordinates {
	la, ok1 := parseFloat(lat)
	lo, ok2 := parseFloat(lon)
	if !ok1 || !ok2 {
		return nil
	}
	c := domain.Coordinates{Lat: la, Lon: lo}.Rounded()
	return &c
}

func columnsNeeded(reg *domain.Registry) (projects, orphans, attrs []string, lineage bool) {
	projects = slices.Clone(reg.Projects)
	recognized := make(map[string]bool, len(projects))
	for _, p := range projects {
		recognized[p] = true
	}

	orphanSet := map[string]struct{}{}
	attrSet := map[string]struct{}{}
	for _, r := range reg.Records {
		for p := range r.Projects {
			if !recognized[p] {
				orphanSet[p] = struct{}{}
			}
		}
		for a := range r.Attributes {
			attrSet[a] = struct{}{}
		}
		if len(r.FormerNames) > 0 {
			lineage = true
		}
	}

	orphans = slices.Sorted(maps.Keys(orphanSet))
	attrs = slices.Sorted(maps.Keys(attrSet))
	return projects, orphans, attrs, lineage
}

func layout(prior, projects, attrs []string, lineage bool) []string {
	out := make([]string, 0, len(prior)+len(projects))
	have := make(map[string]bool, len(prior))
	for _, c := range prior {
		if !have[c] {
			out = append(out, c)
			have[c] = true
		}
	}

	isProject := make(map[string]bool, len(projects))
	for _, p := range projects {
		isProject[p] = true
	}

	// New project columns go after the last project column already present,
	// or after Country when there is none.
	for _, p := range projects {
		if have[p] {
			continue
		}
		at := -1
		for i, c := range out {
			if isProject[c] || (at < 0 && c == ColCountry) {
				at = i
			}
		}
		out = slices.Insert(out, at+1, p)
		have[p] = true
	}

	var tail []string
	for _, c := range []string{ColInstitution, ColCity, ColCountry, ColFunder} {
		if !have[c] {
			tail = append(tail, c)
		}
	}
	for _, a := range attrs {
		if !have[a] {
			tail = append(tail, a)
		}
	}
	if lineage && !have[ColFormerNames] {
		tail = append(tail, ColFormerNames)
	}
	for _, c := range []string{ColLat, ColLon} {
		if !have[c] {
			tail = append(tail, c)
		}
	}
	return append(out, tail...)
}

func booleanColumn(rows [][]string, j int) bool {
	nonBlank := 0
	for _, row := range rows {
		cell := row[j]
		if cell == "" {
			continue
		}
		if _, ok := parseBool(cell); !ok {
			return false
		}
		nonBlank++
	}
	return nonBlank > 0
}

// parseBool accepts the spellings produced by spreadsheets and pandas.
// Blank is false.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "0.0", "false", "no", "n":
		return false, true
	case "1", "1.0", "true", "yes", "y":
		return true, true
	}
	return false, false
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func splitFormerNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, formerNamesSep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(domain.Round6(v), 'f', domain.CoordinatePrecision, 64)
}
