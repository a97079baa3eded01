package utils

import "testing"

func TestMatchPath(t *testing.T) {
	cases := []struct {
		path, pattern string
		want          bool
	}{
		{"/", "/", true},
		{"/leads", "/leads", true},
		{"/leads/", "/leads", true},
		{"/leads/7", "/leads", false},
		{"/company", "/companies/:id/projects", false},
		{"/companies/42/projects", "/companies/:id/projects", true},
		{"/companies//projects", "/companies/:id/projects", false},
		{"/companies/1/projects/9/properties", "/companies/:id/projects/:projectId/properties", true},
		{"/anything/at/all", "/*", true},
		{"/files/a/b", "/files/*", true},
		{"/files", "/files/*", false},
		{"/item/x", "/item/*", true},
	}
	for _, c := range cases {
		if got := MatchPath(c.path, c.pattern); got != c.want {
			t.Fatalf("MatchPath(%q, %q) = %v, want %v", c.path, c.pattern, got, c.want)
		}
	}
}

func TestParams(t *testing.T) {
	params, ok := Params("/companies/42/projects/9/properties", "/companies/:id/projects/:projectId/properties")
	if !ok {
		t.Fatalf("expected match")
	}
	if params["id"] != "42" || params["projectId"] != "9" {
		t.Fatalf("unexpected params: %v", params)
	}
	if _, ok := Params("/punch", "/punch/:leadId"); ok {
		t.Fatalf("expected missing segment to fail")
	}
}

func TestSpecificity(t *testing.T) {
	if Specificity("/companies/:id/projects") <= Specificity("/companies/:id/:section") {
		t.Fatalf("literal segment should outrank parameter")
	}
	if Specificity("/*") != 0 {
		t.Fatalf("catch-all should have zero specificity")
	}
}
