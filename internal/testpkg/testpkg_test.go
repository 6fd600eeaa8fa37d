package testpkg

import "testing"

func TestGenUniqueSolvablesAreDistinct(t *testing.T) {
	sv := GenUniqueSolvables(5, "x86_64")
	seen := map[string]bool{}
	for _, s := range sv {
		key := s.NEVRA.String()
		if seen[key] {
			t.Fatalf("duplicate NEVRA %q", key)
		}
		seen[key] = true
	}
}

func TestGenVersionSeriesSharesName(t *testing.T) {
	sv := GenVersionSeries("foo", 3, "x86_64")
	for _, s := range sv {
		if s.NEVRA.Name != "foo" {
			t.Fatalf("NEVRA.Name = %q, want foo", s.NEVRA.Name)
		}
	}
}

func TestNewFixtureConsideredIncludesAll(t *testing.T) {
	fx := NewFixture("base", GenUniqueSolvables(3, "x86_64"))
	for _, id := range fx.IDs {
		if !fx.Sack.Considered(id) {
			t.Fatalf("id %v should be considered in a fixture with no excludes", id)
		}
	}
}

func TestNewSystemFixtureMarksSystemRepo(t *testing.T) {
	fx := NewSystemFixture(GenUniqueSolvables(2, "x86_64"))
	if !fx.Repo.System {
		t.Fatal("NewSystemFixture's repo should be marked System")
	}
}
