package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pep299/edgewriter/internal/cache"
	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/quality"
	"github.com/pep299/edgewriter/internal/remote"
	"github.com/pep299/edgewriter/internal/stream"
)

// generationTimeout bounds a shared generation once detached from the
// request that started it
const generationTimeout = 2 * time.Minute

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, remote.HealthResponse{
		Status: "ok",
		Model:  s.config.EngineModel,
		Engine: s.engineLabel(),
	})
}

// generateHandler runs one editing request on the server's engine
func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	var req remote.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error decoding request: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, engine.ErrNotReady.Error())
		return
	}

	ctx := r.Context()
	if resp, err := s.cacheManager.GetResult(ctx, cache.ServerTemplate, req); err == nil {
		s.metrics.ObserveCache(true)
		writeJSON(w, http.StatusOK, resp)
		return
	}
	s.metrics.ObserveCache(false)

	// Identical requests in flight share one generation
	v, err, shared := s.group.Do(cache.GenerateKey(cache.ServerTemplate, req), func() (interface{}, error) {
		gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), generationTimeout)
		defer cancel()
		return s.generate(gctx, req)
	})
	if err != nil {
		s.logger.Error("generation failed", zap.String("task", string(req.Task)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error generating text: %v", err))
		return
	}
	if shared {
		s.logger.Debug("generation shared", zap.String("task", string(req.Task)))
	}
	writeJSON(w, http.StatusOK, v.(*remote.GenerateResponse))
}

func (s *Server) generate(ctx context.Context, req remote.GenerateRequest) (*remote.GenerateResponse, error) {
	res, err := s.complete(ctx, string(req.Task), prompt.ServerPrompt(req), generateOptions)
	if err != nil {
		return nil, err
	}

	resp := &remote.GenerateResponse{
		Text:      prompt.CleanOutput(res.Text, prompt.GenerateSeparators...),
		Latency:   roundLatency(res.Elapsed),
		RawOutput: res.Text,
	}
	if res.Usage != nil {
		resp.Tokens = *res.Usage
	}
	if resp.Text != "" {
		if err := s.cacheManager.SetResult(ctx, cache.ServerTemplate, req, *resp); err != nil {
			s.logger.Warn("caching result failed", zap.Error(err))
		}
	}
	return resp, nil
}

// chatHandler answers the last user turn of a conversation
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req remote.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error decoding request: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, engine.ErrNotReady.Error())
		return
	}

	res, err := s.complete(r.Context(), "Chat", prompt.ServerChatPrompt(req.Messages), chatOptions)
	if err != nil {
		s.logger.Error("chat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error generating reply: %v", err))
		return
	}

	text := prompt.CleanOutput(res.Text)
	html, err := chat.RenderMarkdown(text)
	if err != nil {
		s.logger.Warn("rendering reply failed", zap.Error(err))
	}
	resp := remote.ChatResponse{
		GenerateResponse: remote.GenerateResponse{
			Text:      text,
			Latency:   roundLatency(res.Elapsed),
			RawOutput: res.Text,
		},
		HTML: html,
	}
	if res.Usage != nil {
		resp.Tokens = *res.Usage
	}
	writeJSON(w, http.StatusOK, resp)
}

// complete drains one generation from the engine
func (s *Server) complete(ctx context.Context, task, p string, opts engine.Options) (stream.Result, error) {
	chunks, err := s.engine.Generate(ctx, p, opts)
	if err != nil {
		s.metrics.ObserveGeneration(task, string(s.engine.Delegate()), "error", 0, nil)
		return stream.Result{}, err
	}
	res, err := stream.NewAccumulator().Consume(ctx, chunks)
	if err != nil {
		s.metrics.ObserveGeneration(task, string(s.engine.Delegate()), "error", res.Elapsed, nil)
		return stream.Result{}, err
	}
	s.metrics.ObserveGeneration(task, string(s.engine.Delegate()), "ok", res.Elapsed, res.Usage)
	return res, nil
}

// gpuInfoHandler reports the host's GPUs and memory
func (s *Server) gpuInfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prober.Host(r.Context()))
}

// statusHandler reports engine readiness and cache state
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"engine":        s.engineLabel(),
		"model":         s.config.EngineModel,
		"decision":      s.decision,
		"cache":         s.cacheManager.Type(),
		"conversations": s.conversations.Len(),
		"uptime":        time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.engine != nil {
		response["status"] = probe.Status(s.decision, s.engine.Delegate())
	} else {
		response["status"] = "Not initialized"
	}
	writeJSON(w, http.StatusOK, response)
}

type scoreRequest struct {
	Original string `json:"original"`
	Revised  string `json:"revised"`
}

// scoreHandler scores a revision against its original
func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error decoding request: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":  quality.Score(req.Original, req.Revised),
		"original": prompt.Counts(req.Original),
		"revised":  prompt.Counts(req.Revised),
	})
}

// promptHandler previews the prompts built for a request
func (s *Server) promptHandler(w http.ResponseWriter, r *http.Request) {
	var req prompt.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error decoding request: %v", err))
		return
	}
	if _, err := prompt.ParseTask(string(req.Task)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := prompt.BuildRequest(req)
	tokens := prompt.EstimateTokens(p)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prompt":        p,
		"server_prompt": prompt.ServerPrompt(req),
		"params":        prompt.ParamsFor(req.Task),
		"counts":        prompt.Counts(req.Text),
		"prompt_tokens": tokens,
		"budget":        prompt.DefaultBudget,
		"within_budget": prompt.CheckBudget(tokens, prompt.DefaultBudget) == nil,
	})
}

// cacheStatsHandler returns cache statistics
func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cacheManager.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error getting cache stats: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// cacheClearHandler clears the cache
func (s *Server) cacheClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.cacheManager.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error clearing cache: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": "Cache cleared",
	})
}

func (s *Server) engineLabel() string {
	if s.engine == nil {
		return "none"
	}
	return engine.Label(s.engine)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// roundLatency converts d to seconds rounded to 2 decimals
func roundLatency(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
