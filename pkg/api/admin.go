package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"colloquy/pkg/models"
	"colloquy/pkg/queue"
	"colloquy/pkg/store"
	"colloquy/pkg/utils"
)

func (s *Server) usage(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	typ := models.InteractionType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = ic.Meta().Type
	}
	analysis, err := ic.Ledger().AnalyzeUsage(typ)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, analysis)
}

func (s *Server) setObjective(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	var req struct {
		Objective string `json:"objective"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Objective == "" {
		utils.JSONError(w, http.StatusBadRequest, "objective required")
		return
	}
	ic.SetObjective(req.Objective)
	if err := s.save(r, ic); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, ic.Meta().Objectives)
}

func (s *Server) removeResource(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	ic.RemoveResource(vars["resource"], vars["revision"])
	if err := s.save(r, ic); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) migrate(w http.ResponseWriter, r *http.Request) {
	dry := r.URL.Query().Get("dry_run") == "true"
	summary := s.engine.MigrateAll(dry)
	utils.JSONWrite(w, http.StatusOK, summary)
}

func (s *Server) debugState(w http.ResponseWriter, r *http.Request) {
	utils.JSONWrite(w, http.StatusOK, s.mgr.Dump())
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	m := store.GetMetrics()
	total, failed := queue.Stats()
	utils.JSONWrite(w, http.StatusOK, map[string]any{
		"store": m,
		"writes": map[string]any{
			"enqueued":  total,
			"failed":    failed,
			"in_flight": s.writes.InFlight(),
		},
	})
}
