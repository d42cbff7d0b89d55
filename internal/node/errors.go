package node

import "fmt"

// ConstructionError reports a malformed tree: duplicate node keys, invalid
// DMOs, or illegal parent shapes. Raised synchronously at integrator-code
// load time, before any I/O.
type ConstructionError struct {
	Key     string
	Message string
}

func (e *ConstructionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("node %q: %s", e.Key, e.Message)
	}
	return e.Message
}

func constructionErr(key, format string, args ...any) error {
	return &ConstructionError{Key: key, Message: fmt.Sprintf(format, args...)}
}
