package web

import (
	"context"
	"net/http"
	"time"

	"github.com/BetterCallFirewall/Scanhound/internal/config"
	"github.com/BetterCallFirewall/Scanhound/internal/coordinator"
	"github.com/BetterCallFirewall/Scanhound/internal/middlewares"
	"github.com/BetterCallFirewall/Scanhound/internal/models"
	"github.com/BetterCallFirewall/Scanhound/internal/stream"
)

type coordinatorI interface {
	StartRun(ctx context.Context, projectID, runID string, endpointKeys []string) (coordinator.StartResult, error)
	Runs() []models.Run
	Run(runID string) (models.Run, bool)
}

type summaryI interface {
	GetSummary(projectID string) ([]models.VulnSummaryRow, error)
}

type dossierI interface {
	Get(projectID, endpointKey string) (*models.DossierEntry, error)
}

type Server struct {
	config      *config.Config
	coordinator coordinatorI
	summaries   summaryI
	dossiers    dossierI
	hub         *stream.Hub
	server      *http.Server
}

func NewServer(cfg *config.Config, coord coordinatorI, summaries summaryI, dossiers dossierI, hub *stream.Hub) *Server {
	return &Server{
		config:      cfg,
		coordinator: coord,
		summaries:   summaries,
		dossiers:    dossiers,
		hub:         hub,
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.config.Web.ListenAddr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No write timeout: /ws connections stay open for the whole run.
	}

	return s.server.ListenAndServe()
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleGetRun)
	mux.HandleFunc("/api/summary/", s.handleGetSummary)
	mux.HandleFunc("/api/dossier/", s.handleGetDossier)

	// WebSocket endpoint for live run events
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Health check
	mux.HandleFunc(
		"/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	)

	return middlewares.CORS(mux)
}

func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}
