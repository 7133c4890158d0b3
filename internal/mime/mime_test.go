package mime

import "testing"

func TestLookupKnownExtensions(t *testing.T) {
	cases := map[string]Type{
		"index.html":  {"text/html", "utf-8"},
		"photo.JPG":   {"image/jpeg", ""},
		"archive.zip": {"application/zip", ""},
	}
	for name, want := range cases {
		got := Lookup(name)
		if got != want {
			t.Errorf("Lookup(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestLookupUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	got := Lookup("blob.unknownext")
	if got.ContentType != "application/octet-stream" {
		t.Errorf("Lookup(unknown) = %+v, want application/octet-stream", got)
	}
}

func TestStringAppendsCharsetOnlyWhenSet(t *testing.T) {
	if got := (Type{ContentType: "text/plain", Charset: "utf-8"}).String(); got != "text/plain; charset=utf-8" {
		t.Errorf("String() = %q, want \"text/plain; charset=utf-8\"", got)
	}
	if got := (Type{ContentType: "image/png"}).String(); got != "image/png" {
		t.Errorf("String() = %q, want \"image/png\" with no charset suffix", got)
	}
}
