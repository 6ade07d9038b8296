package agent

import (
	"errors"
	"fmt"
)

// ValidationError reports agent output that decoded as schema-valid JSON
// but failed the role's domain checks (empty lesson body, plan week with
// no topic, quiz item with no gradable answer). The orchestrator counts
// it toward the session failure cap exactly like a SchemaError.
type ValidationError struct {
	Role    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s output rejected: %s: %v", e.Role, e.Message, e.Err)
	}
	return fmt.Sprintf("%s output rejected: %s", e.Role, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsInvalidOutput reports whether err means the agent produced unusable
// output, as opposed to a transport failure. Only these count toward the
// consecutive-failure cap; transport errors ask the user to retry without
// moving the session closer to fatal.
func IsInvalidOutput(err error) bool {
	var se *SchemaError
	var ve *ValidationError
	return errors.As(err, &se) || errors.As(err, &ve)
}
