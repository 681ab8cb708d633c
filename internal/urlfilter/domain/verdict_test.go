package domain

import "testing"

func TestMatchLevel_String(t *testing.T) {
	tests := []struct {
		level MatchLevel
		want  string
	}{
		{MatchDefault, "default"},
		{MatchDomain, "domain"},
		{MatchPath, "path"},
		{MatchQuery, "query"},
		{MatchLevel(99), "MatchLevel(99)"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestAllowAll(t *testing.T) {
	v := AllowAll()
	if !v.Allowed() {
		t.Fatal("AllowAll should be allowed")
	}
	if v.Level != MatchDefault || v.Reason != "" {
		t.Errorf("unexpected verdict: %+v", v)
	}
}
