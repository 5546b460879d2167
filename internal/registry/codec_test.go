package registry

import (
	"bytes"
	"errors"
	"partner-registry/internal/domain"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const persisted = `Institution,City,Country,CHAMNHA,HEAT,ENBEL,Funder,Short_Name,lon,lat
Aga Khan University,Nairobi,Kenya,1,0,1,0,AKU,36.817223,-1.286389
Wellcome Trust,London,United Kingdom,0,1,0,1,,-0.127758,51.507351
Ghent University,Ghent,Belgium,0,0,0,0,UGent,,
`

func mustRead(t *testing.T, s string) Table {
	t.Helper()
	tbl, err := ReadTable(strings.NewReader(s))
	require.NoError(t, err)
	return tbl
}

func TestDecodePersistedTable(t *testing.T) {
	reg, err := Decode(mustRead(t, persisted), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"CHAMNHA", "HEAT", "ENBEL"}, reg.Projects)
	require.Equal(t, 3, reg.Len())

	aku, ok := reg.Get("Aga Khan University")
	require.True(t, ok)
	assert.True(t, aku.InProject("CHAMNHA"))
	assert.False(t, aku.InProject("HEAT"))
	assert.Equal(t, "AKU", aku.Attributes["Short_Name"])
	require.NotNil(t, aku.Coordinates)
	assert.Equal(t, domain.Coordinates{Lat: -1.286389, Lon: 36.817223}, *aku.Coordinates)

	wt, _ := reg.Get("Wellcome Trust")
	assert.True(t, wt.IsFunder)

	ghent, _ := reg.Get("Ghent University")
	assert.Nil(t, ghent.Coordinates)
}

func TestRoundTrip(t *testing.T) {
	reg, err := Decode(mustRead(t, persisted), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, Encode(reg)))
	assert.Equal(t, persisted, buf.String())

	again, err := Decode(mustRead(t, buf.String()), nil)
	require.NoError(t, err)
	assert.True(t, reg.Equal(again))
}

func TestRoundTripSemicolonInput(t *testing.T) {
	in := "Institution;City;Country;Funder;HEAT;lat;lon\nA;X;Y;False;True;1.5;2.25\n"
	reg, err := Decode(mustRead(t, in), nil)
	require.NoError(t, err)

	out := Encode(reg)
	assert.Equal(t, []string{"Institution", "City", "Country", "Funder", "HEAT", "lat", "lon"}, out.Header)
	assert.Equal(t, []string{"A", "X", "Y", "0", "1", "1.500000", "2.250000"}, out.Rows[0])
}

func TestDecodeFixesEncoding(t *testing.T) {
	in := "Institution,City,Country,Funder\nUniversité de YaoundÃ© I,YaoundÃ©,Cameroon,0\n"
	reg, err := Decode(mustRead(t, in), nil)
	require.NoError(t, err)

	_, ok := reg.Get("Université de Yaoundé I")
	require.True(t, ok, "exact lookup must succeed after the encoding fix")
	assert.Equal(t, "Yaoundé", reg.Records[0].City)
}

func TestDecodeSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		row  int
	}{
		{"missing institution column", "City,Country\nX,Y\n", 0},
		{"blank institution", "Institution,City,Country\n ,X,Y\n", 1},
		{"non-boolean funder", "Institution,Funder\nA,0\nB,maybe\n", 2},
		{"duplicate column", "Institution,City,City\nA,X,X\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(mustRead(t, tt.in), nil)
			var se *domain.SchemaError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, tt.row, se.Row)
		})
	}
}

func TestDecodeCatalogProjectMustBeBoolean(t *testing.T) {
	in := "Institution,HEAT\nA,sometimes\n"
	_, err := Decode(mustRead(t, in), domain.DefaultCatalog())
	var se *domain.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "HEAT", se.Column)
}

func TestDecodeSchemaEvolutionWithCatalog(t *testing.T) {
	in := "Institution,City,Country,CHAMNHA,HIGH,Funder,lon,lat\nA,X,Y,1,1,0,1,2\n"
	reg, err := Decode(mustRead(t, in), domain.DefaultCatalog())
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultCatalog().IDs(), reg.Projects)

	rec := reg.Records[0]
	assert.True(t, rec.InProject("CHAMNHA"))
	v, present := rec.Projects["BioHEAT"]
	assert.True(t, present)
	assert.False(t, v, "newly recognized project defaults to false")
	assert.True(t, rec.Projects["HIGH"], "unrecognized boolean column kept as membership")

	out := Encode(reg)
	assert.Contains(t, out.Header, "HIGH")
	assert.Contains(t, out.Header, "BioHEAT")
	assert.Equal(t, "Institution", out.Header[0])
	assert.Equal(t, []string{"lon", "lat"}, out.Header[len(out.Header)-2:])
}

func TestEncodeNewRegistryUsesCanonicalOrder(t *testing.T) {
	reg := domain.NewRegistry([]string{"HEAT", "GHAP"})
	reg.Upsert(&domain.PartnerRecord{Institution: "A", City: "X", Country: "Y", FormerNames: []string{"Old A"}})

	out := Encode(reg)
	assert.Equal(t, []string{"Institution", "City", "Country", "Funder", "HEAT", "GHAP", "Former_Names", "lat", "lon"}, out.Header)
	assert.Equal(t, []string{"A", "X", "Y", "0", "0", "0", "Old A", "", ""}, out.Rows[0])
}

func TestEncodeInsertsAddedProjectAfterExistingProjects(t *testing.T) {
	reg, err := Decode(mustRead(t, persisted), nil)
	require.NoError(t, err)
	reg.AddProject("GHAP")

	out := Encode(reg)
	assert.Equal(t, []string{"Institution", "City", "Country", "CHAMNHA", "HEAT", "ENBEL", "GHAP", "Funder", "Short_Name", "lon", "lat"}, out.Header)
}

func TestParseCoordinatesTreatsGarbageAsAbsent(t *testing.T) {
	assert.Nil(t, ParseCoordinates("n/a", "12"))
	assert.Nil(t, ParseCoordinates("", ""))
	assert.Nil(t, ParseCoordinates("NaN", "1"))

	c := ParseCoordinates("51.05434221", "3.71742431")
	require.NotNil(t, c)
	assert.Equal(t, domain.Coordinates{Lat: 51.054342, Lon: 3.717424}, *c)
}

func TestDecodeWithProjectSet(t *testing.T) {
	in := "Institution,City,Country,CHAMNHA,NEWPROJ,Funder,lat,lon\nA,X,Y,1,1,0,,\n"
	set := &domain.ProjectSet{
		Recognized: []string{"CHAMNHA", "NEWPROJ"},
		Dropped:    []string{"HEAT", "GHAP"},
	}

	reg, err := DecodeWith(mustRead(t, in), domain.DefaultCatalog(), set)
	require.NoError(t, err)

	assert.Equal(t, []string{"CHAMNHA", "NEWPROJ", "ENBEL", "HAPI", "BioHEAT", "HIGH_Horizons"}, reg.Projects,
		"dropped catalog projects stay out, catalog projects never seen default in")
	assert.Equal(t, []string{"HEAT", "GHAP"}, reg.Dropped)

	rec := reg.Records[0]
	assert.True(t, rec.InProject("NEWPROJ"))
	_, hasHEAT := rec.Projects["HEAT"]
	assert.False(t, hasHEAT)
	assert.False(t, rec.Projects["ENBEL"])
}

func TestDecodeWithKeepsBlankAddedProject(t *testing.T) {
	in := "Institution,NEWPROJ\nA,\n"
	reg, err := DecodeWith(mustRead(t, in), nil, &domain.ProjectSet{Recognized: []string{"NEWPROJ"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEWPROJ"}, reg.Projects)
	assert.Empty(t, reg.Records[0].Attributes)
}
