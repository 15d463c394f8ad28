package utils

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oakline/atrium/internal/domain"
)

const (
	CookieNameUserID = "atrium_uid"

	maxDisplayNameLength = 64
)

// EnsureUserID resolves a stable user id for the request, minting and
// persisting one when the browser carries none. Reconnects from the same
// browser keep their id.
func EnsureUserID(w http.ResponseWriter, r *http.Request) string {
	if id := GetUserIDFromRequest(r); id != "" {
		return id
	}
	newID := uuid.NewString()
	SetPersistentUserIDCookie(newID, w)
	return newID
}

func GetUserIDFromRequest(r *http.Request) string {
	// First try header (for API clients)
	if token := r.Header.Get("X-User-Token"); token != "" {
		return token
	}

	// Fall back to cookie (for WebSocket)
	cookie, err := r.Cookie(CookieNameUserID)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func SetPersistentUserIDCookie(userID string, w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieNameUserID,
		Value:    userID,
		Path:     "/",
		HttpOnly: true,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
	})
}

// IdentityFromRequest builds the participant identity for a join. Missing
// names fall back to the anonymous placeholder.
func IdentityFromRequest(w http.ResponseWriter, r *http.Request) domain.Identity {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = domain.AnonymousUserID
	}
	if len(name) > maxDisplayNameLength {
		name = name[:maxDisplayNameLength]
	}

	return domain.Identity{
		UserID: EnsureUserID(w, r),
		Name:   name,
	}
}
