package version

import (
	"strings"
	"testing"
)

func TestStringContainsComponents(t *testing.T) {
	s := String()
	for _, want := range []string{"muesli-backend", Version, Commit, Date, "go"} {
		if !strings.Contains(s, want) {
			t.Fatalf("version string %q missing %q", s, want)
		}
	}
}
