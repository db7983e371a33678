package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faheemlabs/faheem/pkg/gemini"
	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/redact"
)

const (
	defaultUpstreamOrigin  = "https://generativelanguage.googleapis.com"
	defaultMaxBodyBytes    = 500 << 20
	defaultOutboundTimeout = 5 * time.Minute
)

// Config contains relay forwarder configuration. MaxBodyBytes is an
// explicit limit so large uploads never depend on framework defaults.
type Config struct {
	UpstreamOrigin  string
	KeyPrefix       string
	MaxBodyBytes    int64
	OutboundTimeout time.Duration

	ServiceName      string
	Version          string
	APIKeyConfigured bool
}

// Handler is the stateless pass-through forwarder: it mirrors the
// upstream call identified by the path header and reflects status,
// selected headers and body back unchanged.
type Handler struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics *Metrics
}

func NewHandler(cfg Config, m *Metrics) *Handler {
	if cfg.UpstreamOrigin == "" {
		cfg.UpstreamOrigin = defaultUpstreamOrigin
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.OutboundTimeout <= 0 {
		cfg.OutboundTimeout = defaultOutboundTimeout
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "faheem-relay"
	}
	if m == nil {
		m = NewMetrics(nil)
	}
	return &Handler{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logging.NewComponentLogger(slog.Default(), "relay"),
		metrics: m,
	}
}

// mirroredHeaders are reflected from the upstream response when present.
var mirroredHeaders = []string{"Location", "Content-Type", "Content-Length", "Cache-Control", "Etag"}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.Header.Get(gemini.HeaderPath)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing " + gemini.HeaderPath + " header"})
		return
	}
	apiKey := r.Header.Get(gemini.HeaderAPIKey)
	if apiKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing " + gemini.HeaderAPIKey + " header"})
		return
	}
	if h.cfg.KeyPrefix != "" && !strings.HasPrefix(apiKey, h.cfg.KeyPrefix) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid API key format"})
		return
	}

	requestID := uuid.NewString()
	h.logger.Info("forwarding",
		slog.String("request_id", requestID),
		slog.String("method", r.Method),
		slog.String("path", path),
		slog.String("credential", redact.Credential(apiKey)))

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
		if err != nil {
			h.metrics.ForwardErrors.WithLabelValues("body").Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large"})
			return
		}
		h.metrics.BodyBytes.Observe(float64(len(data)))
		body = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.OutboundTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.Method, h.cfg.UpstreamOrigin+path, body)
	if err != nil {
		h.internalError(w, err)
		return
	}
	req.Header.Set(gemini.HeaderAPIKey, apiKey)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	start := time.Now()
	h.metrics.InflightRequests.Inc()
	resp, err := h.client.Do(req)
	h.metrics.InflightRequests.Dec()
	h.metrics.ForwardDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.metrics.ForwardErrors.WithLabelValues("timeout").Inc()
			writeJSON(w, http.StatusRequestTimeout, map[string]string{"error": "Request timeout"})
			return
		}
		h.metrics.ForwardErrors.WithLabelValues("transport").Inc()
		h.internalError(w, err)
		return
	}
	defer resp.Body.Close()
	h.metrics.ForwardedRequests.WithLabelValues(r.Method, strconv.Itoa(resp.StatusCode)).Inc()

	for _, name := range mirroredHeaders {
		if value := resp.Header.Get(name); value != "" {
			w.Header().Set(name, value)
		}
	}

	h.writeUpstreamBody(w, resp)
}

// writeUpstreamBody reflects the upstream payload: JSON is parsed and
// re-emitted (an empty JSON body becomes an empty success response), a
// parse failure degrades to the raw text with a text/plain content type,
// and everything else passes through as text.
func (h *Handler) writeUpstreamBody(w http.ResponseWriter, resp *http.Response) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.internalError(w, err)
		return
	}

	if !strings.Contains(contentType, "application/json") {
		w.WriteHeader(resp.StatusCode)
		w.Write(data)
		return
	}

	if len(bytes.TrimSpace(data)) == 0 {
		w.Header().Del("Content-Length")
		w.WriteHeader(resp.StatusCode)
		return
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		h.logger.Warn("upstream JSON parse failed, degrading to text",
			slog.String("error", err.Error()))
		w.Header().Del("Content-Length")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(resp.StatusCode)
		w.Write(data)
		return
	}
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	json.NewEncoder(w).Encode(parsed)
}

// HandleHealth reports liveness; it is not part of the forwarding
// protocol.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   h.cfg.ServiceName,
		"version":   h.cfg.Version,
		"hasApiKey": h.cfg.APIKeyConfigured,
	})
}

func (h *Handler) setCORS(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, "+gemini.HeaderAPIKey+", "+gemini.HeaderPath)
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error("relay error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     "Internal server error",
		"message":   err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
