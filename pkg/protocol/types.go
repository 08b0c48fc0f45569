package protocol

import "encoding/json"

// HTTP API types for the contract host.
// Documents are carried as raw JSON so they reach the contract byte for byte.

// CallRequest is the body of POST /v1/contracts/{name}/call.
// An omitted state or action is passed to the contract as a zero-length buffer.
type CallRequest struct {
	State  json.RawMessage `json:"state,omitempty"`
	Action json.RawMessage `json:"action,omitempty"`
}

// CallResponse carries the state returned by the contract.
type CallResponse struct {
	State json.RawMessage `json:"state"`
}

// ContractInfo describes one registered contract
type ContractInfo struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description,omitempty"`
	StateSchema bool           `json:"state_schema"`
	Stats       *ContractStats `json:"stats,omitempty"`
}

// ContractStats holds call and instance counters of a contract
type ContractStats struct {
	Calls             int64 `json:"calls"`
	Failures          int64 `json:"failures"`
	Traps             int64 `json:"traps"`
	InstancesCreated  int64 `json:"instances_created"`
	InstancesRecycled int64 `json:"instances_recycled"`
	InstancesEvicted  int64 `json:"instances_evicted"`
	InstancesIdle     int   `json:"instances_idle"`
}

// ContractList is the body of GET /v1/contracts.
type ContractList struct {
	Contracts []ContractInfo `json:"contracts"`
}

// ErrorCode classifies a failed request
type ErrorCode string

const (
	ErrorCodeBadRequest      ErrorCode = "bad_request"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodeContractTrap    ErrorCode = "contract_trap"
	ErrorCodeContractError   ErrorCode = "contract_error"
	ErrorCodeSchemaViolation ErrorCode = "schema_violation"
	ErrorCodeTimeout         ErrorCode = "timeout"
	ErrorCodeUnavailable     ErrorCode = "unavailable"
	ErrorCodeRateLimited     ErrorCode = "rate_limited"
	ErrorCodeInternal        ErrorCode = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes what went wrong
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	// Stderr is the guest's diagnostic output for contract traps
	Stderr string `json:"stderr,omitempty"`
}
