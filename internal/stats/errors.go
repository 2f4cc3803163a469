package stats

import "fmt"

// InvalidRecordError reports an activity record that cannot be tallied.
// It is the only error the aggregator returns.
type InvalidRecordError struct {
	Field  string
	Value  any
	Reason string
}

// Error implements the error interface
func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid activity record: %s %s (got %v)", e.Field, e.Reason, e.Value)
}

// InvalidGoalError reports a goal target that is not strictly positive.
type InvalidGoalError struct {
	Field string
	Value float64
}

// Error implements the error interface
func (e *InvalidGoalError) Error() string {
	return fmt.Sprintf("invalid goal: %s must be a positive number (got %v)", e.Field, e.Value)
}
