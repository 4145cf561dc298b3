package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/taxi-dispatch/internal/activation"
	"github.com/example/taxi-dispatch/internal/auth"
	"github.com/example/taxi-dispatch/internal/dispatch"
	"github.com/example/taxi-dispatch/internal/rides"
	"github.com/example/taxi-dispatch/internal/storage"
)

// Server wires the dispatch core to HTTP and websocket transport.
type Server struct {
	Rides    *rides.Service
	Codes    *activation.Allocator
	Auth     auth.Authenticator
	Tokens   *auth.TokenMap
	Store    storage.Store
	Registry *dispatch.Registry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(r *rides.Service, codes *activation.Allocator, tokens *auth.TokenMap, store storage.Store, reg *dispatch.Registry, logger *slog.Logger) *Server {
	s := &Server{
		Rides:    r,
		Codes:    codes,
		Auth:     tokens,
		Tokens:   tokens,
		Store:    store,
		Registry: reg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	// Registration stays outside the authenticated subrouter.
	s.mux.HandleFunc("/api/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/ws", s.handleWS)

	api := s.mux.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/me", s.handleMe).Methods("GET")
	api.HandleFunc("/driver/location", s.handleDriverLocation).Methods("POST")
	api.HandleFunc("/taxis/nearby", s.handleNearby).Methods("GET")
	api.HandleFunc("/rides/request", s.handleRideRequest).Methods("POST")
	api.HandleFunc("/rides/my-rides", s.handleMyRides).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/accept", s.handleRideAccept).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/start", s.handleRideStart).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/complete", s.handleRideComplete).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleRideCancel).Methods("POST")
	api.HandleFunc("/activation/redeem", s.handleRedeem).Methods("POST")
	api.HandleFunc("/activation/stats", s.handleCodeStats).Methods("GET")
	api.HandleFunc("/activation/allocate", s.handleAllocate).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
