package api

import "encoding/json"

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// DecisionError is an error the model reports inside a decision.
type DecisionError struct {
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details json.RawMessage `json:"details,omitempty"`
	Retry   bool            `json:"retry,omitempty"`
}

// Decision is the structured response of one model round. Exactly one of
// ToolCalls, FinalAnswer, or Error is meaningful.
type Decision struct {
	Thought     string         `json:"thought,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	FinalAnswer string         `json:"final_answer,omitempty"`
	Error       *DecisionError `json:"error,omitempty"`
}

// DecisionRequest is what the executor sends to the model each round.
type DecisionRequest struct {
	System  string `json:"system"`
	Tools   string `json:"tools"`
	Prompt  string `json:"prompt"`
	History string `json:"history"`
	Context string `json:"context"`
}
