package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seclayer/urlfilter/internal/urlfilter/services/admin"
)

// handleListDomains returns a safety summary per known shard.
func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.admin.ListDomains(r.Context())
	if err != nil {
		s.adminError(w, err)
		return
	}
	if summaries == nil {
		summaries = []admin.ShardSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleGetDomain returns the shard's full tree, or the fail-open default
// for shards never written.
func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	tree, err := s.admin.GetDomain(r.Context(), chi.URLParam(r, "shardKey"))
	if err != nil {
		s.adminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree.Root)
}

// handlePutDomain replaces a shard tree. ?strict=1 requests strict-create
// semantics, answering 409 when the shard already exists.
func (s *Server) handlePutDomain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeStatus(w, http.StatusRequestEntityTooLarge, "fail", "payload too large")
		return
	}
	payload, err := admin.DecodePayload(body)
	if err != nil {
		s.adminError(w, err)
		return
	}

	mode := admin.ApplyOverwrite
	if isTruthy(r.URL.Query().Get("strict")) {
		mode = admin.ApplyStrictCreate
	}

	created, err := s.admin.PutDomain(r.Context(), chi.URLParam(r, "shardKey"), payload, mode)
	if err != nil {
		s.adminError(w, err)
		return
	}
	if created {
		writeStatus(w, http.StatusCreated, "created", "")
		return
	}
	writeStatus(w, http.StatusOK, "replaced", "")
}

// handleDeleteDomain deletes a shard, a path subtree, or query rules,
// selected by the path/param/value query parameters.
func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := s.admin.DeleteDomain(
		r.Context(),
		chi.URLParam(r, "shardKey"),
		q.Get("path"),
		q.Get("param"),
		q.Get("value"),
		isTruthy(q.Get("strict")),
	)
	if err != nil {
		s.adminError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "deleted", "")
}

// adminError maps service errors onto the admin API's status codes.
func (s *Server) adminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admin.ErrInvalidPayload):
		writeStatus(w, http.StatusUnprocessableEntity, "fail", err.Error())
	case errors.Is(err, admin.ErrConflict):
		writeStatus(w, http.StatusConflict, "fail", err.Error())
	case errors.Is(err, admin.ErrNotFound):
		writeStatus(w, http.StatusNotFound, "fail", err.Error())
	default:
		s.logger.Error(map[string]any{"error": err.Error()}, "Admin operation failed")
		writeStatus(w, http.StatusServiceUnavailable, "fail", "rule store unavailable")
	}
}

func isTruthy(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}
