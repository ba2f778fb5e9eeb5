// Package api implements the HTTP surface of the fleet service.
package api

import (
	"net/http"
	"strings"

	"fleetnav/internal/auth"
)

// principal resolves the caller. A bearer token goes through the verifier;
// in dev mode an X-Role header is accepted as a shortcut.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
	}
	if s.Auth.Mode == auth.ModeDev {
		if role := r.Header.Get("X-Role"); role != "" {
			return auth.Principal{Subject: "header", Role: strings.ToLower(role)}, nil
		}
	}
	return s.Auth.Anonymous(), nil
}

// requireOperator writes a problem and returns false unless the caller may
// change fleet state.
func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	p, err := s.principal(r)
	if err != nil {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
		return false
	}
	if !p.CanOperate() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator role required", r.URL.Path)
		return false
	}
	return true
}
