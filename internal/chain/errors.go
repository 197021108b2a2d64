package chain

import (
	"errors"

	"github.com/agentic-research/strata/api"
	"github.com/agentic-research/strata/internal/chunk"
	"github.com/agentic-research/strata/internal/model"
	"github.com/agentic-research/strata/internal/octree"
	"github.com/agentic-research/strata/internal/tools"
)

// classifyDecide folds a failed model call into a protocol error.
// Remote errors keep their classification; anything else means the
// endpoint never produced a decision, which a retry may cure.
func classifyDecide(err error) *api.DecisionError {
	var remote *model.RemoteError
	if errors.As(err, &remote) {
		return &api.DecisionError{
			Message: remote.Message,
			Code:    remote.Code,
			Retry:   remote.Retryable() || remote.Code == api.CodeInvalidJSON,
		}
	}
	return &api.DecisionError{
		Message: err.Error(),
		Code:    api.CodeModelOverloaded,
		Retry:   true,
	}
}

// classifyTool maps a tool failure onto the codes callers can recover
// from. The code lands in history so the model can tell a missing model
// apart from a bad parameter.
func classifyTool(err error) *api.DecisionError {
	switch {
	case errors.Is(err, chunk.ErrChunkNotFound), errors.Is(err, tools.ErrNoModel):
		return &api.DecisionError{Message: err.Error(), Code: api.CodeProjectNotFound}
	case errors.Is(err, chunk.ErrPayloadCorrupted), errors.Is(err, octree.ErrCorrupted):
		return &api.DecisionError{Message: err.Error(), Code: api.CodeCorruptedData}
	default:
		return &api.DecisionError{Message: err.Error(), Code: api.CodeToolExecution}
	}
}
