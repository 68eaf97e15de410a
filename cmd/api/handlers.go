package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Temiboboye/zbai/internal/config"
	"github.com/Temiboboye/zbai/internal/executor"
	"github.com/Temiboboye/zbai/internal/ledger"
	"github.com/Temiboboye/zbai/internal/lists"
	"github.com/Temiboboye/zbai/internal/models"
	"github.com/Temiboboye/zbai/internal/store"
)

// defaultOwner is the account debited when the caller does not identify
// itself with an X-Owner-ID header.
const defaultOwner = "default"

type apiServer struct {
	exec    *executor.Executor
	lists   *lists.Lists
	listCfg config.ListsConfig
}

type verifyRequest struct {
	Email string `json:"email"`
}

type bulkRequest struct {
	Emails []string `json:"emails"`
}

type bulkResponse struct {
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "Missing 'email' field")
		return
	}

	result, err := s.exec.VerifyOne(r.Context(), ownerOf(r), req.Email)
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	jobID, err := s.exec.SubmitBulk(r.Context(), ownerOf(r), req.Emails)
	if err != nil {
		writeExecError(w, err)
		return
	}

	job, err := s.exec.GetJob(r.Context(), jobID)
	if err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, bulkResponse{
		JobID:   jobID,
		Total:   job.Total,
		Message: "Job created successfully. Processing started.",
	})
}

func (s *apiServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{Status: models.JobStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		f.Limit = n
	}

	jobs, err := s.exec.ListJobs(r.Context(), ownerOf(r), f)
	if err != nil {
		writeExecError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.BulkJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *apiServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.exec.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeExecError(w, err)
		return
	}
	// Another owner's job reads as absent rather than forbidden, so job IDs
	// cannot be probed across accounts.
	if job.OwnerID != ownerOf(r) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.exec.GetJob(r.Context(), id)
	if err != nil {
		writeExecError(w, err)
		return
	}
	if job.OwnerID != ownerOf(r) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err := s.exec.CancelJob(r.Context(), id); err != nil {
		writeExecError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "message": "Cancellation requested"})
}

// handleReloadLists re-reads the configured override files so list updates
// take effect without a restart.
func (s *apiServer) handleReloadLists(w http.ResponseWriter, r *http.Request) {
	if err := loadListFiles(s.lists, s.listCfg); err != nil {
		log.Printf("[API] list reload failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reload lists")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Lists reloaded"})
}

func ownerOf(r *http.Request) string {
	if owner := r.Header.Get("X-Owner-ID"); owner != "" {
		return owner
	}
	return defaultOwner
}

// writeExecError maps executor and ledger errors onto HTTP status codes.
func writeExecError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, executor.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	default:
		log.Printf("[API] internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
