package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"colloquy/pkg/interaction"
	"colloquy/pkg/models"
	"colloquy/pkg/persist"
	"colloquy/pkg/utils"
)

// maxToolRounds bounds the internal tool loop of one statement so a
// model that keeps requesting tools cannot spin forever.
const maxToolRounds = 16

type createRequest struct {
	Title string             `json:"title"`
	Model models.ModelConfig `json:"model"`
}

type converseRequest struct {
	Prompt          string `json:"prompt"`
	Objective       string `json:"objective,omitempty"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
}

type toolResultRequest struct {
	Result string `json:"result"`
}

type pendingTool struct {
	ToolUseID string         `json:"tool_use_id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input,omitempty"`
}

type converseResponse struct {
	Text           string                  `json:"text"`
	StopReason     string                  `json:"stop_reason"`
	Usage          models.UsageSnapshot    `json:"usage"`
	Stats          models.InteractionStats `json:"stats"`
	ClientResponse string                  `json:"client_response,omitempty"`
	PendingTool    *pendingTool            `json:"pending_tool,omitempty"`
}

func (s *Server) createInteraction(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ic, err := s.mgr.Create(project, req.Title, req.Model)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, ic.Meta())
}

func (s *Server) createChild(w http.ResponseWriter, r *http.Request) {
	parentID := mux.Vars(r)["id"]
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ic, err := s.mgr.CreateChild(parentID, req.Title, req.Model)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusCreated, ic.Meta())
}

func (s *Server) listInteractions(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	q := persist.ListQuery{
		Provider:       r.URL.Query().Get("provider"),
		Model:          r.URL.Query().Get("model"),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Since, _ = strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	q.Until, _ = strconv.ParseInt(r.URL.Query().Get("until"), 10, 64)

	items, total, err := s.engine.List(project, q)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{
		"interactions": items,
		"total":        total,
	})
}

func (s *Server) getInteraction(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]any{
		"interaction": ic.Meta(),
		"messages":    ic.Messages(),
	})
}

func (s *Server) deleteInteraction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.mgr.Delete(id); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// converse runs one statement: user prompt in, assistant turn out, with
// internal tools executed in between. A client-executed tool suspends
// the loop and hands the call back to the client.
func (s *Server) converse(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	var req converseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		utils.JSONError(w, http.StatusBadRequest, "prompt required")
		return
	}

	resp, err := ic.Converse(r.Context(), req.Prompt, interaction.ConverseOptions{
		Objective:       req.Objective,
		ParentMessageID: req.ParentMessageID,
	})
	var clientResp string
	if err == nil {
		resp, clientResp, err = s.runToolLoop(w, r, ic, resp)
		if resp == nil && err == nil {
			return // suspended on a client-executed tool; response already written
		}
	}
	s.finishTurn(w, r, ic, resp, clientResp, err)
}

// toolResult resumes a statement suspended on a client-executed tool.
func (s *Server) toolResult(w http.ResponseWriter, r *http.Request) {
	ic, ok := s.load(w, r)
	if !ok {
		return
	}
	var req toolResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	resp, err := ic.RelayToolResult(r.Context(), req.Result)
	var clientResp string
	if err == nil {
		resp, clientResp, err = s.runToolLoop(w, r, ic, resp)
		if resp == nil && err == nil {
			return
		}
	}
	s.finishTurn(w, r, ic, resp, clientResp, err)
}
