// Package flow holds the input vocabulary shared by the reporter and
// moderator conversations: keyword normalisation, yes/no parsing, numbered
// option selection and the two error kinds a conversational step can yield.
package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Global keywords recognised in every conversation.
const (
	KeywordHelp   = "help"
	KeywordCancel = "cancel"
	KeywordBack   = "back"
)

var (
	// ErrInvalidInput marks input that could not be parsed for the current
	// step. The caller re-prompts and leaves state untouched.
	ErrInvalidInput = errors.New("flow: invalid input")

	// ErrIllegalTransition marks a request the current state cannot honour,
	// such as going back with nothing to go back to.
	ErrIllegalTransition = errors.New("flow: illegal transition")
)

// Normalize lowercases and trims input for keyword matching.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// IsYes reports whether input is an affirmative answer (yes or y).
func IsYes(input string) bool {
	switch Normalize(input) {
	case "yes", "y":
		return true
	}
	return false
}

// ParseYesNo accepts yes/y/no/n in any case.
func ParseYesNo(input string) (bool, error) {
	switch Normalize(input) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not yes or no", ErrInvalidInput, input)
}

// ParseChoice parses a 1-based selection among n options and returns the
// 0-based index.
func ParseChoice(input string, n int) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, input)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("%w: %d out of range 1..%d", ErrInvalidInput, i, n)
	}
	return i - 1, nil
}
