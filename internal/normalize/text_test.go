package normalize

import "testing"

func TestFixEncoding(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"YaoundÃ©", "Yaoundé"},
		{"CÃ´te d'Ivoire", "Côte d'Ivoire"},
		{"FÃ©lix HouphouÃ«t-Boigny", "Félix Houphouët-Boigny"},
		{"Karl-Franzens-UniversitÃ¤t Graz", "Karl-Franzens-Universität Graz"},
		{"UmeÃ¥ University", "Umeå University"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FixEncoding(tt.in); got != tt.want {
			t.Errorf("FixEncoding(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFixEncodingComposesToNFC(t *testing.T) {
	decomposed := "Yaounde\u0301"
	if got := FixEncoding(decomposed); got != "Yaound\u00e9" {
		t.Fatalf("FixEncoding(decomposed) = %q, want precomposed", got)
	}
}

func TestCanonicalInstitution(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"London School of Hygiene & Tropical Medicine", "London School of Hygiene and Tropical Medicine"},
		{"University of the Witwatersand", "University of the Witwatersrand"},
		{"  Aga   Khan University ", "Aga Khan University"},
	}
	for _, tt := range tests {
		if got := CanonicalInstitution(tt.in); got != tt.want {
			t.Errorf("CanonicalInstitution(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"cape town", "Cape Town"},
		{"JOHANNESBURG", "Johannesburg"},
		{" nairobi ", "Nairobi"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleCase(tt.in); got != tt.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	if IdentityKey("Karolinska  Institute") != IdentityKey("karolinska institute") {
		t.Fatal("identity keys differ for case/whitespace variants")
	}
	if IdentityKey("Karolinska Institute") == IdentityKey("Karolinska University") {
		t.Fatal("identity keys collide for different names")
	}
}

func TestHeaderKey(t *testing.T) {
	if got := HeaderKey("  Short Name "); got != "Short_Name" {
		t.Fatalf("HeaderKey = %q, want Short_Name", got)
	}
}
