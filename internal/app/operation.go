package app

import "p4-go/internal/journal"

// Operation tracks a CLI command that changes server or workspace state.
// Operations are created in memory with ID=0. Only mutating commands persist
// them to the journal, which then links every p4 invocation to the operation.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     journal.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed when err is non-nil.
func (op *Operation) Fail(err error) {
	if err != nil {
		op.Status = journal.StatusError
	}
}
