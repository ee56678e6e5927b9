// Package main runs a fake LMS core service for local development: it serves
// the internal submission, grading, and notification endpoints the gateway
// calls, with configurable latency and failure injection so retry and
// dead-letter behavior can be exercised end to end.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPort      = "8090"
	defaultLatencyMs = "50"
)

type submission struct {
	ID           int64 `json:"id"`
	AssignmentID int64 `json:"assignment_id"`
	StudentID    int64 `json:"student_id"`
}

type gradeRequest struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Feedback string  `json:"feedback"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var (
	latency time.Duration

	// failEvery injects a 503 on every Nth grade application; 0 disables.
	failEvery int
	callCount int
	countMu   sync.Mutex

	gradesMu sync.Mutex
	grades   = map[int64]gradeRequest{}
)

func main() {
	port := envOr("PORT", defaultPort)
	latencyMs, _ := strconv.Atoi(envOr("LATENCY_MS", defaultLatencyMs))
	latency = time.Duration(latencyMs) * time.Millisecond
	failEvery, _ = strconv.Atoi(os.Getenv("FAIL_EVERY"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /internal/submissions/{id}", handleGetSubmission)
	mux.HandleFunc("PUT /internal/submissions/{id}/grade", handleApplyGrade)
	mux.HandleFunc("POST /internal/notifications/grade", handleNotify)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("fake LMS core listening on :%s (latency=%s fail_every=%d)", port, latency, failEvery)
	log.Printf("submission ids divisible by 7 are unknown; FAIL_EVERY=N injects a 503 on every Nth grade")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatal(err)
	}
}

func handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	time.Sleep(latency)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "id must be an integer"})
		return
	}

	// Deterministic not-found so the 404 path is easy to hit.
	if id%7 == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: fmt.Sprintf("submission %d", id)})
		return
	}

	writeJSON(w, http.StatusOK, submission{
		ID:           id,
		AssignmentID: id%50 + 1,
		StudentID:    id%1000 + 1,
	})
}

func handleApplyGrade(w http.ResponseWriter, r *http.Request) {
	time.Sleep(latency)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "id must be an integer"})
		return
	}

	if failEvery > 0 {
		countMu.Lock()
		callCount++
		inject := callCount%failEvery == 0
		countMu.Unlock()
		if inject {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: "injected failure"})
			return
		}
	}

	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed grade body"})
		return
	}
	if req.MaxScore <= 0 || req.Score < 0 || req.Score > req.MaxScore {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid_grade", Message: "score outside bounds"})
		return
	}

	gradesMu.Lock()
	grades[id] = req
	total := len(grades)
	gradesMu.Unlock()

	log.Printf("grade applied: submission=%d score=%.1f/%.1f (total=%d)", id, req.Score, req.MaxScore, total)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func handleNotify(w http.ResponseWriter, r *http.Request) {
	time.Sleep(latency)

	var req struct {
		StudentID    int64 `json:"student_id"`
		SubmissionID int64 `json:"submission_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed notification body"})
		return
	}

	log.Printf("notification dispatched: student=%d submission=%d", req.StudentID, req.SubmissionID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
