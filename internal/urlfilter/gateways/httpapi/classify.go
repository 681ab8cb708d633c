package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleClassify decomposes the mirrored URL and answers 200 (safe) or
// 403 (blocked). The request tail after /urlinfo/1/ is the original URL's
// authority and path; the original query string arrives as this request's
// own query string, multi-valued parameters included.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	authority, path, err := splitRequestURL(raw)
	if err != nil {
		// Unparsable input fails closed, same as a malformed authority.
		s.logger.Debug(map[string]any{"url": raw, "error": err.Error()}, "Blocking undecomposable URL")
		writeStatus(w, http.StatusForbidden, "fail", "unsafe URL")
		return
	}

	verdict, err := s.classifier.Classify(r.Context(), authority, path, r.URL.Query())
	if err != nil {
		s.logger.Error(map[string]any{"authority": authority, "error": err.Error()}, "Classification unavailable")
		writeStatus(w, http.StatusServiceUnavailable, "fail", "rule store unavailable")
		return
	}

	if verdict.Allowed() {
		writeStatus(w, http.StatusOK, "success", "")
		return
	}

	s.logger.Info(map[string]any{
		"authority": authority,
		"path":      path,
		"level":     verdict.Level.String(),
		"reason":    verdict.Reason,
	}, "Blocked URL")
	writeStatus(w, http.StatusForbidden, "fail", fmt.Sprintf("unsafe URL %s", path))
}

// splitRequestURL extracts authority and path from the wildcard tail. A
// scheme prefix is tolerated and ignored; everything is keyed on
// host:port.
func splitRequestURL(raw string) (authority, path string, err error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("missing authority in %q", raw)
	}
	return u.Host, u.Path, nil
}
