// Package api exposes the HTTP surface: interaction lifecycle, the
// converse loop, usage reporting and the admin endpoints.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"colloquy/pkg/interaction"
	"colloquy/pkg/persist"
	"colloquy/pkg/queue"
	"colloquy/pkg/store"
	"colloquy/pkg/tools"
	"colloquy/pkg/utils"
)

// Server wires the handlers to their collaborators.
type Server struct {
	mgr     *interaction.Manager
	engine  *persist.Engine
	writes  *queue.Queue
	editor  tools.EditorContext
	version string
}

// New builds the API server. editor is the base tool-execution context;
// per-request copies get the project id filled in.
func New(mgr *interaction.Manager, engine *persist.Engine, writes *queue.Queue, editor tools.EditorContext, version string) *Server {
	return &Server{mgr: mgr, engine: engine, writes: writes, editor: editor, version: version}
}

// Router returns the mux with all routes registered.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/projects/{project}/interactions", s.listInteractions).Methods(http.MethodGet)
	v1.HandleFunc("/projects/{project}/interactions", s.createInteraction).Methods(http.MethodPost)
	v1.HandleFunc("/interactions/{id}", s.getInteraction).Methods(http.MethodGet)
	v1.HandleFunc("/interactions/{id}", s.deleteInteraction).Methods(http.MethodDelete)
	v1.HandleFunc("/interactions/{id}/children", s.createChild).Methods(http.MethodPost)
	v1.HandleFunc("/interactions/{id}/converse", s.converse).Methods(http.MethodPost)
	v1.HandleFunc("/interactions/{id}/tool_result", s.toolResult).Methods(http.MethodPost)
	v1.HandleFunc("/interactions/{id}/usage", s.usage).Methods(http.MethodGet)
	v1.HandleFunc("/interactions/{id}/objective", s.setObjective).Methods(http.MethodPost)
	v1.HandleFunc("/interactions/{id}/resources/{resource}/{revision}", s.removeResource).Methods(http.MethodDelete)

	admin := v1.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/migrate", s.migrate).Methods(http.MethodPost)
	admin.HandleFunc("/state", s.debugState).Methods(http.MethodGet)
	admin.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "service": "colloquy"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if !store.Ready() {
		utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	ver := s.version
	if ver == "" {
		ver = "dev"
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "version": ver})
}
