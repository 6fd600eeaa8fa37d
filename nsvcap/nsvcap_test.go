package nsvcap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tcs := []struct {
		in   string
		want Nsvcap
	}{
		{"httpd:2.4:20181213154447:9edba152/default", Nsvcap{Name: "httpd", Stream: "2.4", Version: 20181213154447, HasVer: true, Context: "9edba152", Profile: "default"}},
		{"httpd:2.4:20181213154447:9edba152", Nsvcap{Name: "httpd", Stream: "2.4", Version: 20181213154447, HasVer: true, Context: "9edba152"}},
		{"httpd:2.4:20181213154447", Nsvcap{Name: "httpd", Stream: "2.4", Version: 20181213154447, HasVer: true}},
		{"httpd:2.4", Nsvcap{Name: "httpd", Stream: "2.4"}},
		{"httpd", Nsvcap{Name: "httpd"}},
		{"httpd::::x86_64/default", Nsvcap{Name: "httpd", Arch: "x86_64", Profile: "default"}},
		{"httpd::::x86_64", Nsvcap{Name: "httpd", Arch: "x86_64"}},
	}
	for _, tc := range tcs {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("not a module spec!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPossibilitiesOrdering(t *testing.T) {
	got := Possibilities("httpd")
	if len(got) == 0 {
		t.Fatal("expected at least one possibility")
	}
	if got[len(got)-1].Name != "httpd" {
		t.Fatalf("least-specific form should be bare name, got %+v", got[len(got)-1])
	}
}
