package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"bus-tracker/internal/fleet"
	"bus-tracker/internal/mapview"
	"bus-tracker/internal/roster"
	"bus-tracker/internal/session"
	"bus-tracker/internal/tracker"
)

type connectAgainResponse struct {
	Outcome string         `json:"outcome"`
	Status  tracker.Status `json:"status"`
}

func mountTracker(r *mux.Router, tr *tracker.Tracker, stop context.CancelFunc) {
	r.HandleFunc("/api/tracker/status", func(w http.ResponseWriter, r *http.Request) {
		mapview.WriteJSON(w, http.StatusOK, tr.Status())
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/tracker/connect-again", func(w http.ResponseWriter, r *http.Request) {
		out, err := tr.ConnectAgain(r.Context())
		if errors.Is(err, tracker.ErrHalted) || errors.Is(err, tracker.ErrNotRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		mapview.WriteJSON(w, http.StatusOK, connectAgainResponse{Outcome: out.String(), Status: tr.Status()})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/tracker/logout", func(w http.ResponseWriter, r *http.Request) {
		if err := tr.Logout(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stop()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Found bool             `json:"found"`
	Bus   *fleet.BusRecord `json:"bus,omitempty"`
}

func mountRoster(r *mux.Router, eng *roster.Engine, sessions session.Store, stop context.CancelFunc) {
	r.HandleFunc("/api/roster", func(w http.ResponseWriter, r *http.Request) {
		mapview.WriteJSON(w, http.StatusOK, eng.View(time.Now()))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/roster/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		rec, ok := eng.Search(r.Context(), req.Query)
		resp := searchResponse{Found: ok}
		if ok {
			resp.Bus = &rec
		}
		mapview.WriteJSON(w, http.StatusOK, resp)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/roster/search", func(w http.ResponseWriter, r *http.Request) {
		eng.ClearSearch()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/api/roster/buses/{busId:[0-9]+}/select", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(mux.Vars(r)["busId"])
		if err != nil {
			http.Error(w, "invalid bus id", http.StatusBadRequest)
			return
		}
		rec, err := eng.Select(r.Context(), id)
		if errors.Is(err, roster.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		mapview.WriteJSON(w, http.StatusOK, rec)
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/roster/selection", func(w http.ResponseWriter, r *http.Request) {
		eng.Deselect()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/api/roster/logout", func(w http.ResponseWriter, r *http.Request) {
		if err := sessions.Clear(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stop()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
}
