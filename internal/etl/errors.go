package etl

import "fmt"

// SchemaError reports a raw recording object whose records are missing
// required fields. It is fatal for the session being processed but never for
// the batch: the driver logs it and moves to the next session, leaving this
// one pending for retry.
type SchemaError struct {
	SessionID int64
	Object    string
	Reason    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error in session %d, object %s: %s", e.SessionID, e.Object, e.Reason)
}
