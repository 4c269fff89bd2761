// Package compose relays asteroid composition analysis requests to the
// OpenRouter chat completions API. Responses can be streamed back to the
// client as SSE {"content": ...} events or returned as a single JSON
// document.
package compose

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aster/astergo/internal/httputil"
	"github.com/aster/astergo/internal/metrics"
)

// Model settings. The advanced model is selected when a spectral type is
// present, since classification quality dominates the analysis.
const (
	DefaultModel  = "google/gemini-2.0-flash-exp:free"
	AdvancedModel = "anthropic/claude-3.5-sonnet:beta"
	FallbackModel = "meta-llama/llama-3.2-3b-instruct:free"

	maxTokens   = 2500
	temperature = 0.7
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Config holds relay configuration loaded from environment variables.
type Config struct {
	APIKey     string        // OpenRouter API key; empty disables the endpoint.
	AppURL     string        // Sent as HTTP-Referer (default: http://localhost:3000).
	BaseURL    string        // Upstream base URL, overridable for tests.
	Timeout    time.Duration // Upstream request timeout (default: 90s).
	RatePerIP  float64       // Requests per second per client IP (default: 0.2).
	BurstPerIP int           // Burst per client IP (default: 3).
	TrustProxy bool          // Trust X-Forwarded-For for client IPs.
}

// Request is the analyze endpoint's request body.
type Request struct {
	Asteroid     BodyData `json:"asteroid"`
	UseStreaming *bool    `json:"use_streaming,omitempty"` // default true
}

// Result is the non-streaming response document.
type Result struct {
	AsteroidName string `json:"asteroid_name"`
	AsteroidID   string `json:"asteroid_id"`
	Analysis     string `json:"analysis"`
	ModelUsed    string `json:"model_used"`
}

// Handler relays analysis requests upstream.
type Handler struct {
	config  Config
	client  *http.Client
	limiter *ipLimiter
	logger  *slog.Logger
}

// NewHandler creates a composition analysis handler.
func NewHandler(config Config, logger *slog.Logger) *Handler {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.AppURL == "" {
		config.AppURL = "http://localhost:3000"
	}
	if config.Timeout <= 0 {
		config.Timeout = 90 * time.Second
	}
	if config.RatePerIP <= 0 {
		config.RatePerIP = 0.2
	}
	if config.BurstPerIP <= 0 {
		config.BurstPerIP = 3
	}

	return &Handler{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: newIPLimiter(config.RatePerIP, config.BurstPerIP),
		logger:  logger,
	}
}

// HandleAnalyze serves POST /api/v1/analyze.
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if h.config.APIKey == "" {
		metrics.IncAnalyzeRequests("unconfigured")
		writeError(w, http.StatusServiceUnavailable, "composition analysis is not configured")
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.allow(ip) {
		metrics.IncAnalyzeRequests("rate_limit")
		h.logger.Warn("analyze rate limit exceeded", "remote_ip", ip)
		w.Header().Set("Retry-After", "10")
		writeError(w, http.StatusTooManyRequests, "too many analysis requests")
		return
	}

	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		metrics.IncAnalyzeRequests("bad_request")
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Asteroid.ID == "" || req.Asteroid.Name == "" {
		metrics.IncAnalyzeRequests("bad_request")
		writeError(w, http.StatusBadRequest, "asteroid id and name are required")
		return
	}

	streaming := true
	if req.UseStreaming != nil {
		streaming = *req.UseStreaming
	}

	model := DefaultModel
	if req.Asteroid.SpectralType != "" {
		model = AdvancedModel
	}

	h.logger.Info("analyzing composition",
		"asteroid", req.Asteroid.Name,
		"model", model,
		"streaming", streaming,
	)

	payload := chatPayload{
		Model:  model,
		Models: []string{model, FallbackModel},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req.Asteroid)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      streaming,
	}

	if streaming {
		h.relayStream(r.Context(), w, payload)
		return
	}
	h.relayOnce(r.Context(), w, req.Asteroid, model, payload)
}

// relayOnce performs a non-streaming upstream call and returns the analysis
// as a single JSON document.
func (h *Handler) relayOnce(ctx context.Context, w http.ResponseWriter, body BodyData, model string, payload chatPayload) {
	resp, err := h.upstream(ctx, payload)
	if err != nil {
		metrics.IncAnalyzeRequests("upstream_error")
		h.logger.Error("upstream request failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncAnalyzeRequests("upstream_error")
		h.logger.Error("upstream error", "status", resp.StatusCode, "detail", string(detail))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream error (%d)", resp.StatusCode))
		return
	}

	var doc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		metrics.IncAnalyzeRequests("upstream_error")
		writeError(w, http.StatusBadGateway, "invalid upstream response")
		return
	}

	var content string
	if len(doc.Choices) > 0 {
		content = doc.Choices[0].Message.Content
	}

	metrics.IncAnalyzeRequests("ok")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Result{
		AsteroidName: body.Name,
		AsteroidID:   body.ID,
		Analysis:     content,
		ModelUsed:    model,
	})
}

// relayStream streams the upstream SSE response to the client, rewriting
// delta chunks into {"content": ...} events. Upstream failures after headers
// are reported as in-stream error events followed by [DONE].
func (h *Handler) relayStream(ctx context.Context, w http.ResponseWriter, payload chatPayload) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resp, err := h.upstream(ctx, payload)
	if err != nil {
		metrics.IncAnalyzeRequests("upstream_error")
		h.logger.Error("upstream request failed", "error", err)
		sendStreamError(w, flusher, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		metrics.IncAnalyzeRequests("upstream_error")
		h.logger.Error("upstream error", "status", resp.StatusCode, "detail", string(detail))
		sendStreamError(w, flusher, fmt.Sprintf("upstream error (%d)", resp.StatusCode))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	done := false

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			fmt.Fprint(w, "data: [DONE]\n\n")
			flusher.Flush()
			done = true
			break
		}
		if data == "" {
			continue
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			h.logger.Warn("incomplete JSON chunk received", "line", line)
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		out, _ := json.Marshal(map[string]string{"content": chunk.Choices[0].Delta.Content})
		fmt.Fprintf(w, "data: %s\n\n", out)
		flusher.Flush()
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("upstream stream read error", "error", err)
	}
	if !done {
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
	metrics.IncAnalyzeRequests("ok")
}

// upstream posts the chat payload to the OpenRouter completions endpoint.
func (h *Handler) upstream(ctx context.Context, payload chatPayload) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", h.config.AppURL)
	req.Header.Set("X-Title", "Asteroid Composition Analyzer")

	return h.client.Do(req)
}

// chatPayload is the OpenRouter chat completions request body.
type chatPayload struct {
	Model       string        `json:"model"`
	Models      []string      `json:"models"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sendStreamError(w http.ResponseWriter, flusher http.Flusher, msg string) {
	out, _ := json.Marshal(map[string]string{"error": msg})
	fmt.Fprintf(w, "data: %s\n\n", out)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
