package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"xiaoer/internal/bootstrap/logging"
	"xiaoer/internal/domain/plan"
	"xiaoer/internal/errs"
	"xiaoer/internal/usecase/agent"
	"xiaoer/internal/usecase/batch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type streamEvent struct {
	Type   string           `json:"type"`
	Index  *int             `json:"index,omitempty"`
	Result *plan.ToolResult `json:"result,omitempty"`
	RunID  string           `json:"run_id,omitempty"`
	Plan   *plan.Plan       `json:"plan,omitempty"`
	Answer string           `json:"answer,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// handleAskStream answers a query over a websocket, pushing each tool
// result the moment its slot lands and the composed answer at the end.
// Each connection gets its own runner so observers never cross streams.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn(r.Context(), "websocket upgrade failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	defer conn.Close()

	ctx := r.Context()

	runner := batch.NewRunner(s.agent.Runner().Width())
	runner.SetObserver(func(index int, result plan.ToolResult) {
		idx := index
		res := result
		if err := conn.WriteJSON(streamEvent{Type: "result", Index: &idx, Result: &res}); err != nil {
			logging.Warn(ctx, "stream write failed", slog.Any("err", errs.Loggable(err)))
		}
	})

	svc := agent.NewService(s.planner, s.registry, runner)

	result, err := svc.Ask(ctx, agent.AskInput{Query: query})
	if err != nil {
		_ = conn.WriteJSON(streamEvent{Type: "error", Error: err.Error()})
		return
	}

	_ = conn.WriteJSON(streamEvent{
		Type:   "final",
		RunID:  result.RunID,
		Plan:   &result.Plan,
		Answer: result.Answer,
	})
}
