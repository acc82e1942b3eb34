package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const sessionCookieName = "admin_session"

type loginRequest struct {
	PIN string `json:"pin"`
}

// loginHandler checks the shared PIN and sets the admin session cookie. The
// cookie holds a bcrypt hash of the PIN, so changing ADMIN_PIN ends every
// session.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	pin := s.config.Admin.PIN

	if pin == "" || subtle.ConstantTimeCompare([]byte(req.PIN), []byte(pin)) != 1 {
		s.logger.Warn("Admin login rejected", "remoteAddr", r.RemoteAddr)
		s.respondWithServiceError(w, r, apperrors.NewUnauthorizedError("Invalid PIN"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.bcryptCost)

	if err != nil {
		s.respondWithServiceError(w, r, apperrors.NewInternalError("Failed to create session: "+err.Error()))
		return
	}

	ttl := s.config.Admin.SessionTTL

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    string(hash),
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.config.Admin.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]bool{"authenticated": true}})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Admin.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]bool{"authenticated": false}})
}

// requireAdmin rejects requests without a valid session cookie
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			s.respondWithServiceError(w, r, apperrors.NewUnauthorizedError("Unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(r *http.Request) bool {
	pin := s.config.Admin.PIN

	if pin == "" {
		return false
	}

	cookie, err := r.Cookie(sessionCookieName)

	if err != nil || cookie.Value == "" {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(cookie.Value), []byte(pin)) == nil
}
