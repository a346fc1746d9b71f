package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"colloquy/pkg/interaction"
	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/provider"
	"colloquy/pkg/tools"
	"colloquy/pkg/utils"
)

// load fetches the interaction named in the route, answering 404 when
// it does not exist.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (*interaction.Interaction, bool) {
	id := mux.Vars(r)["id"]
	ic, err := s.mgr.Get(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if ic == nil {
		utils.JSONError(w, http.StatusNotFound, "interaction not found")
		return nil, false
	}
	return ic, true
}

// runToolLoop executes registered tools until the model stops
// requesting them. A tool the registry cannot resolve belongs to the
// client: the loop suspends with the call left pending, the client runs
// it and resumes via the tool_result endpoint.
func (s *Server) runToolLoop(w http.ResponseWriter, r *http.Request, ic *interaction.Interaction, resp *provider.Response) (*provider.Response, string, error) {
	editor := s.editor
	editor.ProjectID = ic.Meta().ProjectID

	var clientResp string
	for round := 0; resp.StopReason == provider.StopToolUse; round++ {
		if round >= maxToolRounds {
			logger.Warn("tool_loop_exhausted", "interaction", ic.ID(), "rounds", round)
			break
		}
		for _, tu := range resp.ToolUses() {
			req := tools.ToolUseRequest{
				ToolUseID: tu.ToolUseID,
				ToolName:  tu.ToolName,
				Input:     tu.Input,
			}
			res, err := s.mgr.Deps().Registry.Dispatch(r.Context(), ic, req, editor)
			if err != nil {
				var te *tools.Error
				if errors.As(err, &te) && te.Op == "resolve" {
					s.writeSuspended(w, r, ic, tu)
					return nil, "", nil
				}
				return nil, "", err
			}
			if res.ClientResponse != "" {
				clientResp = res.ClientResponse
			}
		}
		var err error
		resp, err = ic.RelayToolResult(r.Context(), "")
		if err != nil {
			return nil, clientResp, err
		}
	}
	return resp, clientResp, nil
}

// writeSuspended saves the half-finished statement and tells the client
// which tool call it must run.
func (s *Server) writeSuspended(w http.ResponseWriter, r *http.Request, ic *interaction.Interaction, tu models.ContentPart) {
	meta := ic.Meta()
	if err := s.save(r, ic); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.JSONWrite(w, http.StatusOK, converseResponse{
		StopReason: string(provider.StopToolUse),
		Usage:      meta.Usage,
		Stats:      meta.Stats,
		PendingTool: &pendingTool{
			ToolUseID: tu.ToolUseID,
			Name:      tu.ToolName,
			Input:     tu.Input,
		},
	})
}

// finishTurn persists the interaction and writes the assistant turn.
func (s *Server) finishTurn(w http.ResponseWriter, r *http.Request, ic *interaction.Interaction, resp *provider.Response, clientResp string, convErr error) {
	if saveErr := s.save(r, ic); saveErr != nil {
		logger.Error("interaction_save_failed", "interaction", ic.ID(), "error", saveErr)
		if convErr == nil {
			convErr = saveErr
		}
	}
	if convErr != nil {
		status := http.StatusBadGateway
		if !provider.IsRetryable(convErr) {
			status = http.StatusInternalServerError
		}
		utils.JSONError(w, status, convErr.Error())
		return
	}
	meta := ic.Meta()
	utils.JSONWrite(w, http.StatusOK, converseResponse{
		Text:           resp.Text(),
		StopReason:     string(resp.StopReason),
		Usage:          meta.Usage,
		Stats:          meta.Stats,
		ClientResponse: clientResp,
	})
}

// save routes the persist through the per-project write queue.
func (s *Server) save(r *http.Request, ic *interaction.Interaction) error {
	project := ic.Meta().ProjectID
	return s.writes.Do(r.Context(), project, func() error {
		return s.mgr.Save(ic)
	})
}
