package brain

import "testing"

func TestIsPureSalutation(t *testing.T) {
	cases := []struct {
		query string
		pure  bool
	}{
		{"Bonjour", true},
		{"bonjour", true},
		{"Bonjour !", true},
		{"Bonjour...", true},
		{"  salut  ", true},
		{"Merci beaucoup", true},
		{"Merci !", true},
		{"Thank you.", true},
		{"ok", true},
		{"D'accord", true},
		{"Bonjour, quelle est l'équipe ?", false},
		{"Bonjour pouvez-vous résumer le document", false},
		{"Quelle est la durée du marché ?", false},
		{"merci de me citer l'article 12", false},
		{"ok mais pourquoi", false},
		{"okay", false},
		{"", false},
		{"?", false},
		{"topologie du réseau", false},
	}

	for _, tc := range cases {
		if got := IsPureSalutation(tc.query); got != tc.pure {
			t.Errorf("IsPureSalutation(%q) = %v, want %v", tc.query, got, tc.pure)
		}
	}
}

func TestSafeRequiresSearch_NeverOverridesTowardSkip(t *testing.T) {
	// A "search required" verdict is accepted unconditionally, even for a
	// query that looks like a salutation.
	if !SafeRequiresSearch("Bonjour", true) {
		t.Error("Expected verdict=true to pass through for a salutation")
	}
	if !SafeRequiresSearch("Quelle est la durée ?", true) {
		t.Error("Expected verdict=true to pass through for a question")
	}
}

func TestSafeRequiresSearch_SkipHonoredOnlyForPureSalutations(t *testing.T) {
	if SafeRequiresSearch("Bonjour !", false) {
		t.Error("Expected skip to be honored for a pure salutation")
	}
	if !SafeRequiresSearch("Bonjour, quelle est l'équipe ?", false) {
		t.Error("Expected skip to be overridden when the query contains a question")
	}
	if !SafeRequiresSearch("liste les pénalités de retard", false) {
		t.Error("Expected skip to be overridden for a real instruction")
	}
}

func TestSafeRequiresSearch_QuestionMarkAlwaysForcesSearch(t *testing.T) {
	queries := []string{"Bonjour ?", "merci?", "ok ?"}
	for _, q := range queries {
		if !SafeRequiresSearch(q, false) {
			t.Errorf("SafeRequiresSearch(%q, false): question mark must force search", q)
		}
	}
}
