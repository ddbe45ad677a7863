package http

import (
	"net/http"

	"rigshare/internal/auth"
)

func (s *Server) deleteUserPreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// deleteUserFunction purges the account that owns the bearer token.
func (s *Server) deleteUserFunction(w http.ResponseWriter, r *http.Request) {
	if s.purger == nil || s.verifier == nil {
		writeError(w, http.StatusInternalServerError, "account deletion is not configured")
		return
	}

	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	claims, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Info("delete-user rejected token", "error", err)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := s.purger.Purge(r.Context(), claims.Subject); err != nil {
		s.logger.Error("delete-user failed", "user_id", claims.Subject, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "User account deleted successfully"})
}
