package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nous-labs/switchboard/internal/registry"
	"github.com/nous-labs/switchboard/internal/router"
)

// HTTP API:
//
//	POST /v1/route     route a task, get the outcome
//	GET  /v1/handlers  registered handlers in dispatch order
//	GET  /v1/health    uptime and cached backend liveness
//	GET  /v1/events    SSE stream of routing and status events
//	GET  /v1/projects  recent projects (?limit=N)
//	POST /v1/projects  create a project
var endpoints = []string{"/v1/route", "/v1/handlers", "/v1/health", "/v1/events", "/v1/projects"}

// Handler returns the daemon's HTTP API.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/route", d.handleRoute)
	mux.HandleFunc("/v1/handlers", d.handleHandlers)
	mux.HandleFunc("/v1/health", d.handleHealth)
	mux.HandleFunc("/v1/events", d.handleEvents)
	mux.HandleFunc("/v1/projects", d.handleProjects)
	return mux
}

type routeRequest struct {
	Task    string            `json:"task"`
	Context map[string]string `json:"context,omitempty"`
}

type routeResponse struct {
	TaskID  string           `json:"task_id"`
	Content string           `json:"content"`
	Handler string           `json:"handler"`
	Matched bool             `json:"matched"`
	Code    router.ErrorCode `json:"code,omitempty"`
	Elapsed string           `json:"elapsed"`
}

// handleRoute serves POST /v1/route. A routed failure is still a 200: the
// outcome carries the diagnostic and its code.
func (d *Daemon) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed, use POST")
		return
	}

	var req routeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	out := d.route(r.Context(), "http", router.Task{Text: req.Task, Context: req.Context})
	writeJSON(w, http.StatusOK, routeResponse{
		TaskID:  out.TaskID,
		Content: out.Text,
		Handler: out.Handler,
		Matched: out.Matched,
		Code:    out.Code,
		Elapsed: out.Elapsed.Round(time.Millisecond).String(),
	})
}

func (d *Daemon) handleHandlers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	handlers := d.router.Handlers()
	writeJSON(w, http.StatusOK, map[string]any{
		"handlers": handlers,
		"count":    len(handlers),
	})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":      "ok",
		"name":        d.name,
		"uptime":      time.Since(d.startedAt).Round(time.Second).String(),
		"projects":    d.projects != nil,
		"subscribers": d.events.SubscriberCount(),
	}
	if d.monitor != nil {
		resp["backend"] = d.monitor.Last()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents serves GET /v1/events: recent history first, then live
// events until the client disconnects.
func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := d.events.Subscribe()
	defer d.events.Unsubscribe(events)
	slog.Info("event stream client connected", "subscribers", d.events.SubscriberCount())

	for _, e := range d.events.Recent(50) {
		fmt.Fprintf(w, "data: %s\n\n", e.Marshal())
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("event stream client disconnected")
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", e.Marshal())
			flusher.Flush()
		}
	}
}

type createProjectRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Template     string   `json:"template,omitempty"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

func (d *Daemon) handleProjects(w http.ResponseWriter, r *http.Request) {
	if d.projects == nil {
		writeError(w, http.StatusServiceUnavailable, "project registry not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 10
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		list, err := d.projects.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": list, "count": len(list)})

	case http.MethodPost:
		var req createProjectRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		p, err := d.projects.CreateProject(r.Context(), registry.NewProject{
			Name:         req.Name,
			Type:         registry.ProjectType(req.Type),
			Template:     req.Template,
			Description:  req.Description,
			Technologies: req.Technologies,
		})
		switch {
		case errors.Is(err, registry.ErrInvalidProject):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, registry.ErrProjectExists):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		d.events.Publish(Event{Type: EventStatus, Source: "http", Message: "project created: " + p.Name})
		writeJSON(w, http.StatusCreated, p)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed, use GET or POST")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
