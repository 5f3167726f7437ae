package services

import (
	"context"
	"errors"

	"neurochat/pkg/chattypes"
)

// DefaultMaxToolRounds bounds how many times one turn may go back to the model with tool results.
const DefaultMaxToolRounds = 16

// ErrToolLoopExceeded is returned when a model keeps calling tools past the round limit.
var ErrToolLoopExceeded = errors.New("tool loop exceeded the maximum number of rounds")

// ToolExecutor runs one tool call and always returns a result.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) chattypes.ToolResult
}

// firstClarification returns the first clarification call of a batch, if any.
func firstClarification(calls []chattypes.ToolCall) (chattypes.ToolCall, bool) {
	for _, call := range calls {
		if call.IsClarification() {
			return call, true
		}
	}
	return chattypes.ToolCall{}, false
}

func clarificationResult(question string) chattypes.TurnResult {
	return chattypes.TurnResult{Clarification: &chattypes.ClarificationRequest{Question: question}}
}
