package nevra

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	tcs := []struct {
		name string
		in   string
		want Nevra
		form Form
	}{
		{
			name: "nevra",
			in:   "httpd-2.4.10-1.x86_64",
			want: Nevra{Name: "httpd", Version: "2.4.10", Release: "1", Arch: "x86_64"},
			form: FormNEVRA,
		},
		{
			name: "nevra with epoch",
			in:   "httpd-1:2.4.10-1.x86_64",
			want: Nevra{Name: "httpd", Epoch: NewEpoch(1), Version: "2.4.10", Release: "1", Arch: "x86_64"},
			form: FormNEVRA,
		},
		{
			name: "dashed name",
			in:   "python3-devel-3.11.4-1.fc39",
			want: Nevra{Name: "python3-devel", Version: "3.11.4", Release: "1.fc39"},
			form: FormNEVR,
		},
		{
			name: "na",
			in:   "httpd.x86_64",
			want: Nevra{Name: "httpd", Arch: "x86_64"},
			form: FormNA,
		},
		{
			name: "name only",
			in:   "httpd",
			want: Nevra{Name: "httpd"},
			form: FormNAME,
		},
		{
			name: "nev",
			in:   "httpd-2.4.10",
			want: Nevra{Name: "httpd", Version: "2.4.10"},
			form: FormNEV,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, form, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if form != tc.form {
				t.Errorf("form = %v, want %v", form, tc.form)
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(Epoch{}), cmpopts.EquateComparable()); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tcs := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "foo-1-1.x86_64", "foo-1-1.x86_64", 0},
		{"release newer", "foo-1-2.x86_64", "foo-1-1.x86_64", 1},
		{"version newer", "foo-2-1.x86_64", "foo-1-9.x86_64", 1},
		{"epoch dominates version", "foo-1:1-1.x86_64", "foo-2-1.x86_64", 1},
		{"unset epoch less than set", "foo-1-1.x86_64", "foo-0:1-1.x86_64", -1},
		{"name order", "a-1-1.x86_64", "b-1-1.x86_64", -1},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			a, _, err := Parse(tc.a)
			if err != nil {
				t.Fatal(err)
			}
			b, _, err := Parse(tc.b)
			if err != nil {
				t.Fatal(err)
			}
			got := Compare(a, b)
			got = sign(got)
			if got != tc.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}

func TestString(t *testing.T) {
	n := Nevra{Name: "foo", Epoch: NewEpoch(2), Version: "1.0", Release: "3", Arch: "x86_64"}
	want := "foo-2:1.0-3.x86_64"
	if got := n.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
