package api

// Protocol error codes. They travel inside DecisionError and classify
// failures of the model endpoint and tool execution.
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeModelOverloaded = "MODEL_OVERLOADED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeToolExecution   = "TOOL_EXECUTION_ERROR"
	CodeCorruptedData   = "CORRUPTED_DATA"
	CodeProjectNotFound = "PROJECT_NOT_FOUND"
)
