package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/log"
	"bus-tracker/internal/roster"
)

// PressFunc handles a marker press carrying the marker id.
type PressFunc func(ctx context.Context, id string) error

// Server exposes the latest frame and accepts marker presses and focus
// commands over HTTP.
type Server struct {
	router      *mux.Router
	latest      *Latest
	out         Renderer
	destination fleet.Coordinates
	press       PressFunc
}

// NewServer builds the map routes. Focus commands are sent to out, which
// should include latest so polling clients see them.
func NewServer(latest *Latest, out Renderer, destination fleet.Coordinates, press PressFunc) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		latest:      latest,
		out:         out,
		destination: destination,
		press:       press,
	}
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.router.HandleFunc("/api/map/frame", s.getFrame).Methods(http.MethodGet)
	s.router.HandleFunc("/api/map/markers/{id}/press", s.pressMarker).Methods(http.MethodPost)
	s.router.HandleFunc("/api/map/focus/destination", s.focusDestination).Methods(http.MethodPost)
	return s
}

// Router returns the underlying router so callers can mount more routes.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := s.latest.Frame()
	if !ok {
		http.Error(w, "no frame rendered yet", http.StatusServiceUnavailable)
		return
	}
	WriteJSON(w, http.StatusOK, f)
}

func (s *Server) pressMarker(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.press == nil {
		http.Error(w, "markers are not selectable here", http.StatusNotImplemented)
		return
	}
	if err := s.press(r.Context(), id); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) focusDestination(w http.ResponseWriter, r *http.Request) {
	if err := s.out.Focus(r.Context(), s.destination); err != nil {
		log.Warn("focus destination failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Serve starts an HTTP server on addr with the map routes.
func (s *Server) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "map server stopped")
		}
	}()
	log.Info("map server listening", "addr", addr)
	return srv
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response failed", "error", err)
	}
}
