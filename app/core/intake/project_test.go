package intake

import "testing"

func TestCanonicalProject(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Cask'r App", "caskrapp"},
		{"  Cask'r   App ", "caskrapp"},
		{"WEB-2024", "web2024"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := CanonicalProject(tc.in); got != tc.want {
			t.Fatalf("CanonicalProject(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMatchProject(t *testing.T) {
	options := []string{"Cask'r app", "Brand Refresh", "Web 2024"}

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"exact", "Cask'r app", "Cask'r app"},
		{"noisy spacing and punctuation", "  Cask'r   App ", "Cask'r app"},
		{"case insensitive", "brand refresh", "Brand Refresh"},
		{"digits", "web2024", "Web 2024"},
		{"unknown", "Unknown Co", ""},
		{"near miss is not matched", "Cask'r apps", ""},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchProject(tc.raw, options); got != tc.want {
				t.Fatalf("MatchProject(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestMatchProjectNegativeForms(t *testing.T) {
	options := []string{"Sin Proyecto", "Ninguno", "Brand Refresh"}

	// Even when the option list itself carries a "no project" entry, the
	// negative forms never resolve to it.
	for _, raw := range []string{"Sin Proyecto", "sin proyecto", "NINGUNO", "n/a", "none"} {
		if got := MatchProject(raw, options); got != "" {
			t.Fatalf("MatchProject(%q) = %q, want empty", raw, got)
		}
	}
}
