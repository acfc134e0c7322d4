package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"prtriage/internal/config"
	"prtriage/internal/db"
	gh "prtriage/internal/github"
	"prtriage/internal/store"
	"prtriage/internal/triage"
	"prtriage/internal/types"
)

// Server exposes the triage engine over HTTP: trigger a run, read run
// history, evaluate a single PR. It keeps one dry-run and one live
// orchestrator so a request can choose without rebuilding clients.
type Server struct {
	router  *chi.Mux
	cfg     config.Config
	policy  config.Policy
	dry     *triage.Orchestrator
	live    *triage.Orchestrator
	runs    *store.MemoryRunStore
	archive *store.RunArchive
	log     *zap.Logger
}

func NewServer(cfg config.Config, policy config.Policy, log *zap.Logger) (*Server, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	token := gh.ResolveToken(cfg.GitHubToken, cfg.GitHubTokenCommand)
	newGateway := func(dryRun bool) (gh.Gateway, error) {
		return gh.NewClient(gh.Options{
			Repository: policy.Repository,
			Token:      token,
			BaseAPI:    cfg.GitHubAPIBase,
			DryRun:     dryRun,
			Cache:      gh.NewPRCache(),
			Logger:     log,
		})
	}
	dryGW, err := newGateway(true)
	if err != nil {
		return nil, err
	}
	liveGW, err := newGateway(false)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		policy: policy,
		dry:    triage.New(dryGW, policy, log),
		live:   triage.New(liveGW, policy, log),
		runs:   store.NewMemoryRunStore(50),
		log:    log,
	}

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		if err := database.RunMigrations("migrations"); err != nil {
			database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		s.archive = store.NewRunArchive(database)
		log.Info("run archive enabled")
	} else {
		log.Info("DATABASE_URL not set; run history is in-memory only")
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Post("/api/triage", s.handleTriage)
	s.router.Get("/api/runs", s.handleRuns)
	s.router.Get("/api/runs/latest", s.handleLatestRun)
	s.router.Get("/api/prs/{number}/evaluation", s.handleEvaluation)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// POST /api/triage?mode=live — dry-run unless live is asked for explicitly.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	mode := triage.ModeDryRun
	orch := s.dry
	if r.URL.Query().Get("mode") == "live" {
		mode = triage.ModeLive
		orch = s.live
	}

	run := orch.Run(r.Context(), mode)
	s.runs.Append(run)
	if s.archive != nil {
		if err := s.archive.SaveRun(run); err != nil {
			s.log.Warn("run archive write failed", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.TriageResponse{Run: run})
}

// GET /api/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	resp := types.RunListResponse{Runs: s.runs.List()}
	if s.archive != nil {
		archived, err := s.archive.RecentRuns(s.policy.Repository, 20)
		if err != nil {
			s.log.Warn("run archive read failed", zap.Error(err))
		} else {
			resp.Archived = archived
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// GET /api/runs/latest
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Latest()
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.TriageResponse{Run: run})
}

// GET /api/prs/{number}/evaluation
func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid PR number")
		return
	}
	ev := s.dry.EvaluatePR(r.Context(), number)
	if ev == nil {
		s.writeError(w, http.StatusNotFound, "pull request unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.EvaluationResponse{Evaluation: ev})
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg})
}
