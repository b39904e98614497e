// Package api exposes the two protocol surfaces: a Newznab-style indexer
// endpoint for searching and a SABnzbd-compatible endpoint for queue
// management. Both speak to the same registry, so a grab accepted on the
// queue surface always refers to a release synthesized on the search surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bridgarr/bridgarr/internal/bridge"
	"github.com/bridgarr/bridgarr/internal/logger"
	"github.com/bridgarr/bridgarr/internal/provider"
	"github.com/bridgarr/bridgarr/internal/registry"
	"github.com/bridgarr/bridgarr/internal/verifier"
)

const version = "4.2.2" // queue protocol version string reported to clients

type Options struct {
	APIKey      string
	Listen      string
	OutputDir   string
	SearchLimit SearchLimits
}

// SearchLimits caps provider work per search request.
type SearchLimits struct {
	MaxTitles        int
	MaxLinksPerTitle int
}

type Server struct {
	opts     Options
	source   provider.ContentSource
	resolver provider.TitleResolver
	verifier *verifier.Verifier
	registry *registry.Registry
	bridge   *bridge.Bridge
	log      zerolog.Logger

	httpSrv *http.Server
}

// New assembles the HTTP surface. resolver may be nil; id-based searches
// then degrade to connectivity-test responses.
func New(opts Options, source provider.ContentSource, resolver provider.TitleResolver, v *verifier.Verifier, reg *registry.Registry, br *bridge.Bridge) *Server {
	s := &Server{
		opts:     opts,
		source:   source,
		resolver: resolver,
		verifier: v,
		registry: reg,
		bridge:   br,
		log:      logger.New("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/sabnzbd/api", s.handleSabnzbd)
	mux.HandleFunc("/getnzb", s.handleGetNZB)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              opts.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info().Str("listen", s.opts.Listen).Msg("http server started")

	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleAPI serves both surfaces on one path: queue-protocol calls carry a
// mode parameter, indexer calls carry t.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("mode") != "" {
		s.handleSabnzbd(w, r)
		return
	}

	s.handleNewznab(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engineUp, authOK, lastErr, since := s.bridge.Health().Snapshot()

	body := map[string]any{
		"status":    "ok",
		"engine_up": engineUp,
		"auth_ok":   authOK,
		"since":     since.UTC().Format(time.RFC3339),
	}
	if s.bridge.Health().Degraded() {
		body["status"] = "degraded"
	}
	if lastErr != nil {
		body["last_error"] = lastErr.Error()
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) authorized(r *http.Request) bool {
	return r.URL.Query().Get("apikey") == s.opts.APIKey
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
