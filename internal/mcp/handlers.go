package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danielpatrickdp/dpd-weights/internal/weights"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 500
)

// registerTools registers the dpd tools with the MCP server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dpd_update",
		Description: "Feed one cycle of empathy, coherence and dissonance scores and commit the updated weights",
	}, s.handleUpdate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dpd_status",
		Description: "Show the active weights, convergence and the latest interpretation",
	}, s.handleStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dpd_history",
		Description: "List stored weight versions, newest first",
	}, s.handleHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dpd_current",
		Description: "Get the active weight vector",
	}, s.handleCurrent)
}

func (s *Server) handleUpdate(ctx context.Context, req *sdk.CallToolRequest, args UpdateInput) (*sdk.CallToolResult, UpdateOutput, error) {
	res, err := s.orch.Step(ctx, weights.Scores{
		Empathy:    args.Empathy,
		Coherence:  args.Coherence,
		Dissonance: args.Dissonance,
	})
	if err != nil {
		return nil, UpdateOutput{}, fmt.Errorf("update failed: %w", err)
	}
	return nil, UpdateOutput{
		VersionID:         res.VersionID,
		Weights:           res.Update.New,
		Delta:             res.Update.Delta,
		UpdateMagnitude:   res.Update.UpdateMagnitude,
		ConvergenceMetric: res.Update.ConvergenceMetric,
		WeightedTotal:     res.WeightedTotal,
		Adjustments:       res.Update.Adjustments,
		Committed:         res.Committed,
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *sdk.CallToolRequest, args StatusInput) (*sdk.CallToolResult, StatusOutput, error) {
	st, err := s.orch.Status()
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("status failed: %w", err)
	}
	out := StatusOutput{
		VersionID:   st.VersionID,
		Weights:     st.Weights,
		Convergence: st.Convergence,
		HistoryLen:  st.HistoryLen,
		Frozen:      st.Frozen,
	}
	n, err := s.orch.LatestNarrative()
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("load narrative: %w", err)
	}
	if n != nil {
		out.Narrative = n.Text
	}
	return nil, out, nil
}

func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (*sdk.CallToolResult, HistoryOutput, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := s.orch.Versions(limit)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("list versions: %w", err)
	}
	items := make([]VersionItem, 0, len(records))
	for _, r := range records {
		items = append(items, VersionItem{
			VersionID: r.VersionID,
			ParentID:  r.ParentID,
			Weights:   r.Weights,
			CreatedAt: r.CreatedAt,
		})
	}
	return nil, HistoryOutput{Versions: items, Count: len(items)}, nil
}

func (s *Server) handleCurrent(ctx context.Context, req *sdk.CallToolRequest, args CurrentInput) (*sdk.CallToolResult, CurrentOutput, error) {
	cur, err := s.orch.Current()
	if err != nil {
		return nil, CurrentOutput{}, fmt.Errorf("load current weights: %w", err)
	}
	return nil, CurrentOutput{VersionID: cur.VersionID, Weights: cur.Weights}, nil
}
