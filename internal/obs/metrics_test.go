package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                             "/",
		"/metrics":                     "/metrics",
		"/api/auth/login":              "/api/auth/login",
		"/api/users/me":                "/api/users/me",
		"/api/users/me/password":       "/api/users/me/password",
		"/api/users/01HZX/role":        "/api/users/:id/role",
		"/api/users/01HZX/enabled":     "/api/users/:id/enabled",
		"/api/users/01HZX/affiliation": "/api/users/:id/affiliation",
		"/api/users/01HZX":             "/api/users/:id",
		"/api/students/01HZX":          "/api/students/:id",
		"/api/students/01HZX/profile":  "/api/students/:id/profile",
		"/api/students/01HZX/extra":    "/api/students/01HZX/extra",
		"/api/admin/students":          "/api/admin/students",
		"/api/admin/students?limit=10": "/api/admin/students",
		"/api/students":                "/api/students",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestRecordersDoNotPanicBeforeInit(t *testing.T) {
	RecordLogin("success")
	RecordTokenValidation("expired")
	RecordAuthzDecision(false, "NotOwner")
	RecordAuthzDecision(true, "ignored")
	Init()
	Init()
}
