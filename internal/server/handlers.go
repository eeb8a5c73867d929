package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/datacloak/internal/audit"
	"github.com/raaihank/datacloak/internal/privacy"
	"github.com/raaihank/datacloak/internal/websocket"
)

// textRequest is the body of /v1/detect and /v1/mask
type textRequest struct {
	Text *string `json:"text"`
}

type detectResponse struct {
	Detections []privacy.Detection `json:"detections"`
	RequestID  string              `json:"request_id"`
}

// maskResponse mirrors privacy.MaskingOutcome; original_text is only present
// when echoing is enabled
type maskResponse struct {
	OriginalText *string                 `json:"original_text,omitempty"`
	MaskedText   string                  `json:"masked_text"`
	DetectedPII  []privacy.Detection     `json:"detected_pii"`
	Metadata     privacy.MaskingMetadata `json:"metadata"`
	RequestID    string                  `json:"request_id"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports the active engine configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Load()
	engineConfig := s.Engine().Config()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                   "datacloak",
		"version":                privacy.Version,
		"pii_types":              s.Engine().Types(),
		"email_validation":       engineConfig.EmailValidation,
		"credit_card_validation": engineConfig.CreditCardValidation,
		"max_text_length":        engineConfig.MaxTextLength,
		"echo_original":          cfg.Server.EchoOriginal,
		"rate_limit_enabled":     s.limiter != nil,
		"stats_enabled":          s.stats != nil,
		"audit_enabled":          s.audit != nil,
		"websocket_enabled":      s.wsHub != nil,
		"uptime":                 time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleVersion handles version requests
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": privacy.Version})
}

// handleDetect returns every accepted detection in the request text
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	start := time.Now()
	detections, err := s.Engine().DetectContext(r.Context(), text)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if detections == nil {
		detections = []privacy.Detection{}
	}

	requestID := getRequestID(r.Context())
	s.record(r.Context(), requestID, audit.OperationDetect, len(text), detections, time.Since(start))

	writeJSON(w, http.StatusOK, detectResponse{
		Detections: detections,
		RequestID:  requestID,
	})
}

// handleMask returns the masked text with its detections and metadata
func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}

	start := time.Now()
	outcome, err := s.Engine().MaskTextContext(r.Context(), text)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	requestID := getRequestID(r.Context())
	s.record(r.Context(), requestID, audit.OperationMask, len(text), outcome.DetectedPII, time.Since(start))

	resp := maskResponse{
		MaskedText:  outcome.MaskedText,
		DetectedPII: outcome.DetectedPII,
		Metadata:    outcome.Metadata,
		RequestID:   requestID,
	}
	if resp.DetectedPII == nil {
		resp.DetectedPII = []privacy.Detection{}
	}
	if s.config.Load().Server.EchoOriginal {
		resp.OriginalText = &outcome.OriginalText
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns the accumulated per-type detection totals
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		s.writeError(w, r, http.StatusNotFound, "stats disabled")
		return
	}

	totals, err := s.stats.Totals(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read stats", zap.Error(err))
		s.writeError(w, r, http.StatusServiceUnavailable, "stats unavailable")
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// handleAudit returns the newest audit events
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.writeError(w, r, http.StatusNotFound, "audit disabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read audit events", zap.Error(err))
		s.writeError(w, r, http.StatusServiceUnavailable, "audit unavailable")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// readText decodes the request body. It writes the error response and
// returns false when the body is unusable.
func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	cfg := s.config.Load()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, cfg.Server.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return "", false
		}
		s.writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return "", false
	}

	// encoding/json would silently replace invalid bytes with U+FFFD
	if !utf8.Valid(body) {
		s.writeError(w, r, http.StatusBadRequest, "request body is not valid UTF-8")
		return "", false
	}

	var req textRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed JSON body")
		return "", false
	}
	if req.Text == nil {
		s.writeError(w, r, http.StatusBadRequest, `missing "text" field`)
		return "", false
	}

	return *req.Text, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *privacy.InputTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		s.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		s.logger.WithRequestID(getRequestID(r.Context())).Error("PII engine failed", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// record feeds a finished request to metrics, stats, audit and the hub.
// Store failures are logged and never fail the request.
func (s *Server) record(ctx context.Context, requestID string, op audit.Operation, textLength int, detections []privacy.Detection, elapsed time.Duration) {
	counts := privacy.CountByType(detections)
	s.metrics.ObserveDetections(counts)

	log := s.logger.WithRequestID(requestID)

	if s.stats != nil {
		if err := s.stats.Record(ctx, counts); err != nil {
			log.Warn("Failed to record stats", zap.Error(err))
		}
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, audit.NewEvent(requestID, op, textLength, detections, elapsed)); err != nil {
			log.Warn("Failed to record audit event", zap.Error(err))
		}
	}

	if len(detections) > 0 {
		log.Info("PII detected",
			zap.String("operation", string(op)),
			zap.Int("findings_count", len(detections)),
		)

		if s.wsHub != nil {
			byType := make(map[string]int, len(counts))
			for piiType, n := range counts {
				byType[string(piiType)] = n
			}
			s.wsHub.BroadcastDetection(websocket.DetectionEvent{
				RequestID:     requestID,
				Operation:     string(op),
				Counts:        byType,
				TotalFindings: len(detections),
				TextLength:    textLength,
				ProcessingMS:  float64(elapsed.Microseconds()) / 1000,
			})
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{
		Error:     message,
		RequestID: getRequestID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
