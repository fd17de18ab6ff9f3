package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrNotAuthenticated returns an error when no valid access token is stored.
func ErrNotAuthenticated() error {
	return &ErrorWithSuggestion{
		Err:        errors.New("not logged in or session expired"),
		Suggestion: "Run 'orgsync login' to sign in",
	}
}

// ErrEntityNotFound returns an error for an item missing from a collection.
func ErrEntityNotFound(kind, id string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("%s not found: %s", kind, id),
		Suggestion: fmt.Sprintf("Use 'orgsync %s list' to see available items", kind),
	}
}

// ErrInvalidCategory returns an error for an unknown expense category.
func ErrInvalidCategory(category string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid category: %s", category),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrInvalidFilter returns an error for a categorical filter the resource does not offer.
func ErrInvalidFilter(kind, filter string, valid []string) error {
	if len(valid) == 0 {
		return &ErrorWithSuggestion{
			Err:        fmt.Errorf("%s cannot be filtered by category: %s", kind, filter),
			Suggestion: "Use --search to narrow the list instead",
		}
	}
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid filter for %s: %s", kind, filter),
		Suggestion: fmt.Sprintf("Valid options: all, %s", strings.Join(valid, ", ")),
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15), today, tomorrow or +Nd",
	}
}

// ErrInvalidTime returns an error for an invalid time of day.
func ErrInvalidTime(timeStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid time: %s", timeStr),
		Suggestion: "Use time format HH:MM (e.g., 09:30)",
	}
}

// ErrInvalidAmount returns an error for a malformed or negative amount.
func ErrInvalidAmount(amount string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid amount: %s", amount),
		Suggestion: "Amount must be a non-negative number (e.g., 12.50)",
	}
}

// ErrBackendOffline returns an error when the API is unreachable with smart suggestions.
func ErrBackendOffline(baseURL, reason string) error {
	suggestion := getSmartSuggestion(reason)
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server %s is unreachable: %s", baseURL, reason),
		Suggestion: suggestion,
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running, or start a local one with 'orgsync serve'"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and api.base_url in the config file"
}

// ErrAuthenticationFailed returns an error when login is refused.
func ErrAuthenticationFailed(username string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("authentication failed for %s", username),
		Suggestion: "Verify your username and password, or create an account with 'orgsync register'",
	}
}
