// Package main provides the HTTP entry point for the PostgreSQL agent.
// Each session holds one agent; confirmation suspension is resolved via
// a follow-up request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forfd8960/postgres-agent/internal/agent"
	"github.com/forfd8960/postgres-agent/internal/audit"
	"github.com/forfd8960/postgres-agent/internal/config"
	"github.com/forfd8960/postgres-agent/internal/db"
	"github.com/forfd8960/postgres-agent/internal/llm"
	"github.com/forfd8960/postgres-agent/internal/safety"
	"github.com/forfd8960/postgres-agent/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

type server struct {
	cfg      *config.Settings
	executor *db.PostgresExecutor
	client   llm.Client
	sink     audit.Sink

	mu       sync.Mutex
	sessions map[string]*agent.Agent
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", ":8080", "Listen address")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if cfg.Database.DSN == "" {
		log.Fatal().Msg("database DSN is required in config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor, err := db.NewPostgresExecutor(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer executor.Close()

	client, err := llm.NewLangchainClient(llm.LangchainConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}

	sinks := audit.MultiSink{audit.NewLogSink()}
	if cfg.Audit.DSN != "" {
		store, err := audit.NewStore(audit.StoreConfig{DSN: cfg.Audit.DSN})
		if err != nil {
			log.Warn().Err(err).Msg("Audit store unavailable")
		} else {
			sinks = append(sinks, store)
			defer store.Close()
		}
	}

	srv := &server{
		cfg:      cfg,
		executor: executor,
		client:   client,
		sink:     sinks,
		sessions: make(map[string]*agent.Agent),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", srv.handleHealth)
	r.Post("/v1/query", srv.handleQuery)
	r.Post("/v1/sessions/{sessionID}/confirm", srv.handleConfirm)

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	log.Info().Str("addr", *addr).Str("version", Version).Msg("agentd listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func (s *server) newAgent() *agent.Agent {
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, s.executor)
	return agent.New(
		agent.NewContext(s.cfg.Agent.MaxHistory, s.cfg.Agent.MaxTokens),
		registry,
		s.client,
		s.sink,
		agent.Config{
			MaxIterations:     s.cfg.Agent.MaxIterations,
			SafetyLevel:       s.cfg.SafetyLevel(),
			ReadOnly:          s.cfg.Database.ReadOnly,
			OperationTimeout:  s.cfg.Agent.OperationTimeout.Std(),
			ToolTimeout:       s.cfg.Agent.ToolTimeout.Std(),
			Model:             s.cfg.LLM.Model,
			Temperature:       s.cfg.LLM.Temperature,
			MaxResponseTokens: s.cfg.LLM.MaxTokens,
			User:              "api",
			Database:          s.cfg.Database.Name,
		},
	)
}

type queryRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

type queryResponse struct {
	SessionID    string                      `json:"session_id"`
	Kind         string                      `json:"kind"`
	Answer       string                      `json:"answer,omitempty"`
	Confirmation *safety.ConfirmationRequest `json:"confirmation,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	ag, ok := s.sessions[sessionID]
	if !ok {
		ag = s.newAgent()
		s.sessions[sessionID] = ag
	}
	s.mu.Unlock()

	resp, err := ag.Run(r.Context(), req.Query)
	writeAgentResponse(w, sessionID, resp, err)
}

type confirmRequest struct {
	// Action is approve, approve_typed, admin_approve or reject.
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

func (s *server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	ag, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var resp *agent.Response
	var err error
	switch req.Action {
	case "approve":
		resp, err = ag.Confirm(r.Context())
	case "approve_typed":
		resp, err = ag.ConfirmTyped(r.Context(), req.Value)
	case "admin_approve":
		resp, err = ag.AdminApprove(r.Context())
	case "reject":
		resp, err = ag.Reject(r.Context())
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	writeAgentResponse(w, sessionID, resp, err)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.executor.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("database unreachable: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func writeAgentResponse(w http.ResponseWriter, sessionID string, resp *agent.Response, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrEmptyQuery) || errors.Is(err, safety.ErrTypedMismatch) {
			status = http.StatusBadRequest
		}
		if errors.Is(err, agent.ErrNoPendingConfirmation) || errors.Is(err, safety.ErrExpired) {
			status = http.StatusConflict
		}
		writeJSON(w, status, queryResponse{SessionID: sessionID, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		SessionID:    sessionID,
		Kind:         string(resp.Kind),
		Answer:       resp.Answer,
		Confirmation: resp.Confirmation,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
