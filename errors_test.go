package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserError(t *testing.T) {
	t.Run("error without cause", func(t *testing.T) {
		err := &UserError{Message: "test error"}
		if err.Error() != "test error" {
			t.Errorf("Error() = %q, want %q", err.Error(), "test error")
		}
	})

	t.Run("error with cause", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := &UserError{Message: "test error", Cause: cause}
		expected := "test error: underlying error"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})

	t.Run("unwrap reaches kind and cause", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := &UserError{Kind: ErrInference, Message: "test error", Cause: cause}
		if !errors.Is(err, cause) {
			t.Error("errors.Is should find the cause")
		}
		if !errors.Is(err, ErrInference) {
			t.Error("errors.Is should find the kind")
		}
		if errors.Is(err, ErrModelLoad) {
			t.Error("errors.Is should not match another kind")
		}
	})

	t.Run("kind survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", ErrVocabLoadFailed("vocab.txt", nil))
		if !errors.Is(err, ErrVocabLoad) {
			t.Error("errors.Is should see through fmt wrapping")
		}
		var userErr *UserError
		if !errors.As(err, &userErr) {
			t.Fatal("errors.As should find the UserError")
		}
		if !strings.Contains(userErr.Message, "vocab.txt") {
			t.Errorf("Message = %q, want the path", userErr.Message)
		}
	})
}

func TestFormatUserError(t *testing.T) {
	t.Run("formats UserError with suggestion", func(t *testing.T) {
		err := &UserError{
			Message:    "test error",
			Cause:      errors.New("root cause"),
			Suggestion: "try this fix",
		}
		output := FormatUserError(err)
		for _, want := range []string{"test error", "root cause", "try this fix"} {
			if !strings.Contains(output, want) {
				t.Errorf("output should contain %q:\n%s", want, output)
			}
		}
	})

	t.Run("formats generic error with auto-suggestion", func(t *testing.T) {
		err := errors.New("no valid credential sources")
		output := FormatUserError(err)
		if !strings.Contains(output, "no valid credential") {
			t.Error("output should contain error message")
		}
		if !strings.Contains(output, "aws configure") {
			t.Error("output should contain AWS credential suggestion")
		}
	})
}

func TestGetSuggestionForError(t *testing.T) {
	tests := []struct {
		name        string
		errStr      string
		shouldMatch string
	}{
		{
			name:        "onnx runtime missing",
			errStr:      "ONNX Runtime not available",
			shouldMatch: "-tags onnx",
		},
		{
			name:        "AWS credentials error",
			errStr:      "no valid credential sources",
			shouldMatch: "aws configure",
		},
		{
			name:        "AWS region error",
			errStr:      "region not specified",
			shouldMatch: "AWS_REGION",
		},
		{
			name:        "missing file",
			errStr:      "open model.onnx: no such file or directory",
			shouldMatch: "bertlens import",
		},
		{
			name:        "locked index",
			errStr:      "database is locked",
			shouldMatch: "search index",
		},
		{
			name:        "timeout",
			errStr:      "context deadline exceeded (timeout)",
			shouldMatch: "timed out",
		},
		{
			name:        "network error",
			errStr:      "connection refused",
			shouldMatch: "network",
		},
		{
			name:        "unknown error",
			errStr:      "some random error",
			shouldMatch: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suggestion := getSuggestionForError(tt.errStr)
			if tt.shouldMatch == "" {
				if suggestion != "" {
					t.Errorf("expected no suggestion, got %q", suggestion)
				}
			} else if !strings.Contains(strings.ToLower(suggestion), strings.ToLower(tt.shouldMatch)) {
				t.Errorf("suggestion %q should contain %q", suggestion, tt.shouldMatch)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *UserError
		kind error
	}{
		{"ErrVocabLoadFailed", ErrVocabLoadFailed("v.txt", cause), ErrVocabLoad},
		{"ErrModelLoadFailed", ErrModelLoadFailed("rubert-tiny2", cause), ErrModelLoad},
		{"ErrBlankInput", ErrBlankInput(), ErrInvalidInput},
		{"ErrInferenceFailed", ErrInferenceFailed("rubert-tiny2", cause), ErrInference},
		{"ErrBedrockInvoke", ErrBedrockInvoke(cause), ErrInference},
		{"ErrAWSConfig", ErrAWSConfig(cause), ErrModelLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("%s should be %v", tt.name, tt.kind)
			}
			if tt.err.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}

	t.Run("model load suggests download", func(t *testing.T) {
		err := ErrModelLoadFailed("rubert-tiny2", cause)
		if !strings.Contains(err.Suggestion, "bertlens download rubert-tiny2") {
			t.Errorf("Suggestion = %q", err.Suggestion)
		}
	})
}
