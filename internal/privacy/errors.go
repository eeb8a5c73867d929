package privacy

import "fmt"

// PatternCompilationError reports a registry pattern that failed to compile
type PatternCompilationError struct {
	Type PIIType
	Err  error
}

func (e *PatternCompilationError) Error() string {
	return fmt.Sprintf("failed to compile %s pattern: %v", e.Type, e.Err)
}

func (e *PatternCompilationError) Unwrap() error {
	return e.Err
}

// InputTooLargeError is returned when text exceeds the configured maximum length
type InputTooLargeError struct {
	Actual int
	Max    int
}

func (e *InputTooLargeError) Error() string {
	return fmt.Sprintf("text length (%d) exceeds maximum (%d)", e.Actual, e.Max)
}
