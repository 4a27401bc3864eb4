package server

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arena-core/internal/game"
)

// NewRouter builds the HTTP surface: the game websocket endpoint plus the
// operational routes (status, metrics, pprof).
func NewRouter(sv *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/play", sv.Hub().HandleWS)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		st := sv.State()
		out := statusResponse{
			Tick:       st.MonotonicTick(),
			Players:    st.Players().Len(),
			Spectators: st.Spectators().Len(),
			Map:        sv.mapName,
			Options:    st.Options(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", http.HandlerFunc(pprof.Index))
		r.Get("/cmdline", http.HandlerFunc(pprof.Cmdline))
		r.Get("/profile", http.HandlerFunc(pprof.Profile))
		r.Get("/symbol", http.HandlerFunc(pprof.Symbol))
		r.Get("/trace", http.HandlerFunc(pprof.Trace))
		r.Handle("/{name}", http.HandlerFunc(pprof.Index))
	})

	return r
}

type statusResponse struct {
	Tick       uint64       `json:"tick"`
	Players    int          `json:"players"`
	Spectators int          `json:"spectators"`
	Map        string       `json:"map"`
	Options    game.Options `json:"options"`
}
