package model

// ToolStatus is the coarse outcome attached to a workflow result.
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "SUCCESS"
	ToolStatusFailed  ToolStatus = "FAILED"
)

// ToolCallResult is the tool outcome as exposed to callers.
type ToolCallResult struct {
	Status ToolStatus `json:"status"`
	Detail string     `json:"detail"`
}

// ToolExecutionResult is what the tool registry returns for one call.
type ToolExecutionResult struct {
	ToolName string `json:"toolName"`
	Success  bool   `json:"success"`
	Detail   string `json:"detail"`
}

// ToCallResult maps an execution result to its caller-facing form.
func (r ToolExecutionResult) ToCallResult() ToolCallResult {
	status := ToolStatusFailed
	if r.Success {
		status = ToolStatusSuccess
	}
	return ToolCallResult{Status: status, Detail: r.Detail}
}
