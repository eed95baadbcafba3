package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadership-finder/internal/dispatcher"
	"github.com/JakeFAU/leadership-finder/internal/export"
	"github.com/JakeFAU/leadership-finder/internal/id/uuid"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
	"github.com/JakeFAU/leadership-finder/internal/worker"
)

const maxBodyBytes = 8 << 20

type discoverRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Website   string `json:"website"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Website) == "" {
		writeError(w, http.StatusBadRequest, "website is required")
		return
	}
	company := leadership.Company{
		ID:      strings.TrimSpace(req.CompanyID),
		Name:    strings.TrimSpace(req.Name),
		Website: strings.TrimSpace(req.Website),
	}
	res := worker.Guard(r.Context(), s.discoverer, company, s.logger)
	writeJSON(w, http.StatusOK, res)
}

type submitBatchRequest struct {
	Companies []leadership.Company `json:"companies"`
	// BudgetSeconds overrides the configured batch timeout when set.
	BudgetSeconds *int `json:"budget_seconds,omitempty"`
}

type submitBatchResponse struct {
	BatchID   string `json:"batch_id"`
	StatusURL string `json:"status_url"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Companies) == 0 {
		writeError(w, http.StatusBadRequest, "companies must not be empty")
		return
	}
	var budget time.Duration
	if req.BudgetSeconds != nil {
		if *req.BudgetSeconds < 0 {
			writeError(w, http.StatusBadRequest, "budget_seconds must be >= 0")
			return
		}
		budget = time.Duration(*req.BudgetSeconds) * time.Second
	}

	id, err := s.batches.Submit(r.Context(), req.Companies, budget)
	switch {
	case errors.Is(err, dispatcher.ErrTooManyCompanies):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("batch submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit batch")
		return
	}
	writeJSON(w, http.StatusAccepted, submitBatchResponse{
		BatchID:   id,
		StatusURL: "/v1/batches/" + id,
	})
}

type batchDTO struct {
	ID        string                   `json:"id"`
	Status    leadership.BatchStatus   `json:"status"`
	Submitted time.Time                `json:"submitted"`
	Deadline  *time.Time               `json:"deadline,omitempty"`
	Finished  *time.Time               `json:"finished,omitempty"`
	Counters  leadership.BatchCounters `json:"counters"`
	Results   []*leadership.Result     `json:"results,omitempty"`
}

func toBatchDTO(b leadership.Batch, withResults bool) batchDTO {
	dto := batchDTO{
		ID:        b.ID,
		Status:    b.Status,
		Submitted: b.Submitted,
		Finished:  b.Finished,
		Counters:  b.Counters,
	}
	if !b.Deadline.IsZero() {
		deadline := b.Deadline
		dto.Deadline = &deadline
	}
	if withResults {
		dto.Results = b.Results
	}
	return dto
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	withResults, err := parseBool(r.URL.Query().Get("results"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "results must be a boolean")
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch, withResults))
}

type uploadResponse struct {
	URI string `json:"uri"`
}

func (s *Server) exportBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.loadBatch(w, r)
	if !ok {
		return
	}
	upload, err := parseBool(r.URL.Query().Get("upload"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload must be a boolean")
		return
	}

	if upload {
		if s.exporter == nil {
			writeError(w, http.StatusServiceUnavailable, "export sink not configured")
			return
		}
		uri, err := s.exporter.Upload(r.Context(), batch)
		if err != nil {
			s.logger.Error("export upload failed", zap.String("batch_id", batch.ID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to upload export")
			return
		}
		writeJSON(w, http.StatusOK, uploadResponse{URI: uri})
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", batch.ID+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, export.Rows(batch)); err != nil {
		s.logger.Warn("export write failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
}

func (s *Server) loadBatch(w http.ResponseWriter, r *http.Request) (leadership.Batch, bool) {
	id := chi.URLParam(r, "batch_id")
	if !uuid.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid batch_id")
		return leadership.Batch{}, false
	}
	batch, err := s.batches.Batch(r.Context(), id)
	switch {
	case errors.Is(err, leadership.ErrNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
		return leadership.Batch{}, false
	case err != nil:
		s.logger.Error("batch lookup failed", zap.String("batch_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return leadership.Batch{}, false
	}
	return batch, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseBool(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse bool: %w", err)
	}
	return v, nil
}
