package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/MythicalCosmic/smart-pos/internal/models"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/version"
)

// Server exposes the cloud authority's Receiver over HTTP.
type Server struct {
	receiver primary.Receiver
	logger   *log.Logger
}

// NewServer creates the cloud HTTP surface.
func NewServer(receiver primary.Receiver, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{receiver: receiver, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sync/health", s.handleHealth)
	mux.HandleFunc("POST /sync/push", s.auth(s.handlePush))
	mux.HandleFunc("GET /sync/pull", s.auth(s.handlePull))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

// auth enforces the branch token scheme: "Authorization: Branch <token>".
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Branch ")
		if !ok || !s.receiver.AuthorizeBranch(strings.TrimSpace(token)) {
			s.logger.Printf("unauthorized %s %s from branch %q", r.Method, r.URL.Path, r.Header.Get("X-Branch-ID"))
			writeError(w, http.StatusUnauthorized, "invalid branch token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed push body")
		return
	}

	branch := r.Header.Get("X-Branch-ID")
	if branch == "" {
		branch = req.Branch
	}

	records := make([]*models.ChangeRecord, len(req.Records))
	for i, d := range req.Records {
		records[i] = fromDTO(d)
	}

	result, err := s.receiver.ReceiveBatch(r.Context(), primary.ReceiveRequest{
		Branch:  branch,
		Records: records,
	})
	if err != nil {
		s.logger.Printf("receive batch from %s failed: %v", branch, err)
		writeError(w, http.StatusInternalServerError, "receive failed")
		return
	}

	out := pushResponse{AcceptedIDs: result.AcceptedIDs}
	if out.AcceptedIDs == nil {
		out.AcceptedIDs = []string{}
	}
	for _, rej := range result.Rejected {
		out.Rejected = append(out.Rejected, rejectedDTO{ID: rej.ID, Reason: rej.Reason, Permanent: rej.Permanent})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := s.receiver.PullChanges(r.Context(), primary.PullRequest{
		Branch: r.Header.Get("X-Branch-ID"),
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		s.logger.Printf("pull failed: %v", err)
		writeError(w, http.StatusInternalServerError, "pull failed")
		return
	}

	out := pullResponse{Records: []changeDTO{}, NextCursor: resp.NextCursor}
	for _, rec := range resp.Records {
		out.Records = append(out.Records, toDTO(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
