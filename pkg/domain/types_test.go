package domain

import "testing"

func TestClassifySource(t *testing.T) {
	cases := []struct {
		name string
		src  Source
		want SourceType
	}{
		{"bytes", SourceFromBytes([]byte("%PDF-1.7")), SourcePDF},
		{"empty bytes", SourceFromBytes([]byte{}), SourcePDF},
		{"bare doi", SourceFromString("10.1038/nphys1170"), SourceDOI},
		{"doi url", SourceFromString("https://doi.org/10.1038/nphys1170"), SourceDOI},
		{"dx doi url", SourceFromString("http://dx.doi.org/10.1038/nphys1170"), SourceDOI},
		{"web url", SourceFromString("https://example.com/article"), SourceURL},
		{"doi-like path", SourceFromString("https://example.com/10.1038"), SourceURL},
	}
	for _, tc := range cases {
		if got := ClassifySource(tc.src); got != tc.want {
			t.Fatalf("%s: ClassifySource() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestCanonicalDOIURL(t *testing.T) {
	if got := CanonicalDOIURL("10.1000/xyz"); got != "https://doi.org/10.1000/xyz" {
		t.Fatalf("CanonicalDOIURL(bare) = %q", got)
	}
	if got := CanonicalDOIURL("https://dx.doi.org/10.1000/xyz"); got != "https://dx.doi.org/10.1000/xyz" {
		t.Fatalf("CanonicalDOIURL(url) = %q", got)
	}
}

func TestProcessingStatusTerminal(t *testing.T) {
	if StatusProcessing.Terminal() {
		t.Fatalf("processing must not be terminal")
	}
	if !StatusProcessed.Terminal() || !StatusFailed.Terminal() {
		t.Fatalf("processed and failed must be terminal")
	}
}
