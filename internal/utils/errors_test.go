package utils

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// Error Tests
// =============================================================================

// TestErrorWithSuggestionError verifies Error() method output
func TestErrorWithSuggestionError(t *testing.T) {
	err := &ErrorWithSuggestion{
		Err:        errors.New("something went wrong"),
		Suggestion: "Try doing X",
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "something went wrong") {
		t.Errorf("Error() should contain error message, got: %s", errStr)
	}
	if !strings.Contains(errStr, "Suggestion: Try doing X") {
		t.Errorf("Error() should contain suggestion, got: %s", errStr)
	}
}

// TestErrorWithSuggestionUnwrap verifies Unwrap() for error chain
func TestErrorWithSuggestionUnwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	wrapped := WrapWithSuggestion(underlying, "custom suggestion")

	if !errors.Is(wrapped, underlying) {
		t.Errorf("errors.Is should find the underlying error")
	}

	var errWithSuggestion *ErrorWithSuggestion
	if !errors.As(wrapped, &errWithSuggestion) {
		t.Fatal("WrapWithSuggestion should return *ErrorWithSuggestion")
	}
	if errWithSuggestion.GetSuggestion() != "custom suggestion" {
		t.Errorf("Suggestion = %s, want 'custom suggestion'", errWithSuggestion.GetSuggestion())
	}
}

// =============================================================================
// Pre-built Error Constructor Tests
// =============================================================================

func suggestionOf(t *testing.T, err error) string {
	t.Helper()
	var errWithSuggestion *ErrorWithSuggestion
	if !errors.As(err, &errWithSuggestion) {
		t.Fatalf("expected *ErrorWithSuggestion, got %T", err)
	}
	return errWithSuggestion.GetSuggestion()
}

// TestErrNotAuthenticated verifies the login suggestion
func TestErrNotAuthenticated(t *testing.T) {
	if s := suggestionOf(t, ErrNotAuthenticated()); !strings.Contains(s, "orgsync login") {
		t.Errorf("suggestion should mention login, got: %s", s)
	}
}

// TestErrEntityNotFound verifies the list suggestion names the resource
func TestErrEntityNotFound(t *testing.T) {
	err := ErrEntityNotFound("notes", "42")
	if !strings.Contains(err.Error(), "notes not found: 42") {
		t.Errorf("unexpected error: %s", err)
	}
	if s := suggestionOf(t, err); !strings.Contains(s, "orgsync notes list") {
		t.Errorf("suggestion should mention list command, got: %s", s)
	}
}

// TestErrInvalidCategory verifies valid options are listed
func TestErrInvalidCategory(t *testing.T) {
	err := ErrInvalidCategory("leisure", []string{"food", "transport"})
	if s := suggestionOf(t, err); s != "Valid options: food, transport" {
		t.Errorf("unexpected suggestion: %s", s)
	}
}

// TestErrInvalidFilter verifies resources without categories suggest search
func TestErrInvalidFilter(t *testing.T) {
	if s := suggestionOf(t, ErrInvalidFilter("notes", "food", nil)); !strings.Contains(s, "--search") {
		t.Errorf("expected search suggestion, got: %s", s)
	}
	if s := suggestionOf(t, ErrInvalidFilter("tasks", "done", []string{"completed", "pending"})); !strings.Contains(s, "all, completed, pending") {
		t.Errorf("expected options, got: %s", s)
	}
}

// TestErrBackendOfflineSmartSuggestion verifies context-aware suggestions
func TestErrBackendOfflineSmartSuggestion(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"dial tcp: lookup api.example: no such host", "DNS"},
		{"dial tcp 127.0.0.1:8000: connect: connection refused", "orgsync serve"},
		{"context deadline exceeded (Client.Timeout exceeded while awaiting headers): i/o timeout", "Try again later"},
		{"something else", "api.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			err := ErrBackendOffline("http://localhost:8000", tt.reason)
			if !strings.Contains(err.Error(), "http://localhost:8000") {
				t.Errorf("error should contain base URL, got: %s", err)
			}
			if s := suggestionOf(t, err); !strings.Contains(s, tt.want) {
				t.Errorf("suggestion for %q = %q, want it to contain %q", tt.reason, s, tt.want)
			}
		})
	}
}
