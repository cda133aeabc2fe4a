package model

// MaxRepairs caps the repair loop: the initial attempt plus at most two
// repairs, three executions total.
const MaxRepairs = 2

// QueryAttempt is one generated SQL statement. Attempt starts at 0 and
// increments on each repair; at most one attempt is current at a time.
type QueryAttempt struct {
	SQL     string `json:"sql"`
	Attempt int    `json:"attempt"`
}

// ExecutionResult is the outcome of running one QueryAttempt. Database
// errors are captured in Err rather than raised, which is what makes the
// repair loop possible.
type ExecutionResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Err     string           `json:"error,omitempty"`
}

// OK reports whether the execution succeeded.
func (r *ExecutionResult) OK() bool {
	return r != nil && r.Err == ""
}

// HasRows reports a successful execution that returned at least one row.
func (r *ExecutionResult) HasRows() bool {
	return r.OK() && len(r.Rows) > 0
}
