package http

import (
	"net/http"
	"sv-governance/internal/auth"
)

func userOf(r *http.Request) string {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return "unknown"
	}
	return user
}
