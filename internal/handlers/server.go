package handlers

import (
	"errors"
	"time"

	"github.com/gorilla/mux"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pep299/edgewriter/internal/cache"
	"github.com/pep299/edgewriter/internal/chat"
	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/engine"
	"github.com/pep299/edgewriter/internal/metrics"
	"github.com/pep299/edgewriter/internal/probe"
	"github.com/pep299/edgewriter/internal/prompt"
)

// Sampling used by the HTTP endpoints
var (
	generateOptions = engine.Options{
		MaxTokens:     2048,
		Temperature:   0.35,
		TopP:          0.9,
		RepeatPenalty: 1.1,
		Stop:          prompt.StopSequences,
	}
	chatOptions = engine.Options{
		MaxTokens:     2048,
		Temperature:   0.5,
		TopP:          0.9,
		RepeatPenalty: 1.05,
		Stop:          prompt.StopSequences,
	}
)

// conversationIdle is how long an untouched websocket conversation is kept
const conversationIdle = 30 * time.Minute

// Deps are the collaborators of the HTTP server
type Deps struct {
	Engine   engine.Engine
	Decision probe.Decision
	Prober   *probe.Prober
	Cache    *cache.Manager
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Server holds the HTTP server and its dependencies
type Server struct {
	config       *config.Config
	engine       engine.Engine
	decision     probe.Decision
	prober       *probe.Prober
	cacheManager *cache.Manager
	metrics      *metrics.Metrics
	logger       *zap.Logger
	secure       *secure.Secure
	limiter      *ipLimiter
	group        singleflight.Group
	startedAt    time.Time

	// websocket chat history by conversation ID
	conversations *chat.Store
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewManagerWithCache(config.CacheMemory, cache.NewMemoryCache(time.Duration(cfg.CacheDuration)*time.Hour))
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Prober == nil {
		deps.Prober = probe.NewProber(deps.Logger)
	}

	return &Server{
		config:       cfg,
		engine:       deps.Engine,
		decision:     deps.Decision,
		prober:       deps.Prober,
		cacheManager: deps.Cache,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		secure: secure.New(secure.Options{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			BrowserXssFilter:   true,
			ReferrerPolicy:     "same-origin",
		}),
		limiter:       newIPLimiter(cfg.RateLimit, cfg.RateBurst),
		conversations: chat.NewStore(conversationIdle),
		startedAt:     time.Now(),
	}, nil
}

// PruneConversations drops idle chat conversations
func (s *Server) PruneConversations(now time.Time) int {
	return s.conversations.Prune(now)
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.secure.Handler)
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.authMiddleware)

	// Inference server
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/generate", s.rateLimit(s.generateHandler)).Methods("POST", "OPTIONS")
	r.HandleFunc("/chat", s.rateLimit(s.chatHandler)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/gpu-info", s.gpuInfoHandler).Methods("GET")
	r.HandleFunc("/ws/generate", s.wsGenerateHandler).Methods("GET")
	r.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	// API routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.statusHandler).Methods("GET")
	api.HandleFunc("/score", s.scoreHandler).Methods("POST", "OPTIONS")
	api.HandleFunc("/prompt", s.promptHandler).Methods("POST", "OPTIONS")
	api.HandleFunc("/cache/stats", s.cacheStatsHandler).Methods("GET")
	api.HandleFunc("/cache/clear", s.cacheClearHandler).Methods("DELETE", "OPTIONS")

	return r
}
