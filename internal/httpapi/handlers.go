package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/clipwave/internal/config"
	"github.com/MimeLyc/clipwave/internal/jobs"
	"github.com/MimeLyc/clipwave/pkg/file"
)

const anonymousOwner = "anonymous"

type createJobRequest struct {
	SourceURL    string `json:"youtube_url"`
	Instructions string `json:"instructions"`
	UserID       string `json:"user_id"`
}

type createJobResponse struct {
	JobID   string      `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

// jobResponse is a job snapshot plus the download link once it is ready.
type jobResponse struct {
	*jobs.Job
	JobID    string `json:"job_id"`
	VideoURL string `json:"video_url,omitempty"`
}

func newJobResponse(job *jobs.Job) jobResponse {
	ret := jobResponse{Job: job, JobID: job.ID}
	if job.Status == jobs.StatusCompleted {
		ret.VideoURL = "/api/videos/" + url.PathEscape(job.ID)
	}
	return ret
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list := s.queue.List(r.URL.Query().Get("user_id"))
		ret := make([]jobResponse, 0, len(list))
		for _, job := range list {
			ret = append(ret, newJobResponse(job))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs": ret,
		})
	case http.MethodPost:
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.SourceURL) == "" {
			writeError(w, http.StatusBadRequest, "youtube_url is required")
			return
		}
		if strings.TrimSpace(req.UserID) == "" {
			req.UserID = anonymousOwner
		}

		job := s.queue.Submit(jobs.SubmitRequest{
			SourceURL:   req.SourceURL,
			Instruction: req.Instructions,
			Owner:       req.UserID,
		})
		writeJSON(w, http.StatusCreated, createJobResponse{
			JobID:   job.ID,
			Status:  job.Status,
			Message: "Job created successfully",
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobDetailRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseIDRoute(r.URL.Path, "/api/jobs/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "":
		s.handleJobDetail(w, r, jobID)
	case "events":
		s.handleJobEvents(w, r, jobID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request, jobID string) {
	job, status := s.ownedJob(r, jobID)
	if status != http.StatusOK {
		writeError(w, status, http.StatusText(status))
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newJobResponse(job))
	case http.MethodDelete:
		deleted, err := s.queue.Delete(job.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Job deleted successfully",
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID, action, ok := parseIDRoute(r.URL.Path, "/api/videos/")
	if !ok || action != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, status := s.ownedJob(r, jobID)
	if status == http.StatusForbidden {
		writeError(w, status, http.StatusText(status))
		return
	}
	if status != http.StatusOK || job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusNotFound, "video not found or not ready")
		return
	}
	if !file.NonEmpty(job.ResultRef) {
		writeError(w, http.StatusNotFound, "video file not found")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="clip_%s.mp4"`, job.ID))
	http.ServeFile(w, r, job.ResultRef)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, redactSettings(settings))
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(req.LLMAPIKey) == "" || req.LLMAPIKey == redactedKey {
			// keep the stored key when the client echoes the redacted value back
			current, err := s.settings.GetRuntimeSettings()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			req.LLMAPIKey = current.LLMAPIKey
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, redactSettings(saved))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

const redactedKey = "********"

func redactSettings(s config.RuntimeSettings) config.RuntimeSettings {
	if s.LLMAPIKey != "" {
		s.LLMAPIKey = redactedKey
	}
	return s
}

// ownedJob looks a job up and applies the optional user_id check.
func (s *Server) ownedJob(r *http.Request, jobID string) (*jobs.Job, int) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return nil, http.StatusNotFound
	}
	if owner := r.URL.Query().Get("user_id"); owner != "" && owner != job.Owner {
		return nil, http.StatusForbidden
	}
	return job, http.StatusOK
}

// parseIDRoute splits "<prefix><id>[/<action>]".
func parseIDRoute(path, prefix string) (id string, action string, ok bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return "", "", false
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) > 2 {
		return "", "", false
	}
	rawID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(rawID) == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return rawID, "", true
	}
	return rawID, parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
