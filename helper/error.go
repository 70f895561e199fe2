package helper

import "fmt"

// NewError wraps an error with the operation that produced it.
// It keeps the original error in the chain for errors.Is/As.
func NewError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}
