package main

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Every error returned by the analysis pipeline wraps one of
// these, so callers can branch with errors.Is.
var (
	ErrVocabLoad      = errors.New("vocabulary load failed")
	ErrModelLoad      = errors.New("model load failed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInference      = errors.New("inference failed")
	ErrAnalyzerClosed = errors.New("analyzer is closed")
	ErrNotInitialized = errors.New("analyzer is not initialized")
)

// UserError represents an error that should be displayed to the user with helpful context
type UserError struct {
	Kind       error
	Message    string
	Cause      error
	Suggestion string
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// FormatUserError formats an error for user display with colors and suggestions
func FormatUserError(err error) string {
	var sb strings.Builder

	var userErr *UserError
	if errors.As(err, &userErr) {
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", userErr.Message))
		if userErr.Cause != nil {
			sb.WriteString(fmt.Sprintf("       Cause: %v\n", userErr.Cause))
		}
		if userErr.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", userErr.Suggestion))
		}
	} else {
		errStr := err.Error()
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", errStr))

		suggestion := getSuggestionForError(errStr)
		if suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", suggestion))
		}
	}

	return sb.String()
}

// getSuggestionForError returns a helpful suggestion based on error content
func getSuggestionForError(errStr string) string {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "onnx runtime") {
		return "Build with `-tags onnx` and CGO enabled, then run 'bertlens download --runtime' to fetch the shared library."
	}

	if strings.Contains(errLower, "no valid credential") ||
		strings.Contains(errLower, "unable to sign request") {
		return "The bedrock engine needs AWS credentials. Run 'aws configure' or set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY."
	}

	if strings.Contains(errLower, "region") {
		return "Set the AWS_REGION environment variable (e.g., 'export AWS_REGION=us-east-1')."
	}

	if strings.Contains(errLower, "no such file") || strings.Contains(errLower, "not found") {
		return "Model files are looked up under BERTLENS_MODELS_DIR. Use 'bertlens import' or 'bertlens download' to add them."
	}

	if strings.Contains(errLower, "database is locked") {
		return "Another bertlens process holds the search index. Close it and try again."
	}

	if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
		return "The operation timed out. Large inputs take longer on CPU; try a shorter text or a smaller model."
	}

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "network") {
		return "Check your network connection. You may be offline or behind a firewall."
	}

	return ""
}

// ErrVocabLoadFailed creates an error for a missing, empty or unreadable vocabulary
func ErrVocabLoadFailed(path string, cause error) *UserError {
	return &UserError{
		Kind:       ErrVocabLoad,
		Message:    fmt.Sprintf("Failed to load vocabulary: %s", path),
		Cause:      cause,
		Suggestion: "The vocabulary must be a plain-text file with one token per line. Re-import it with 'bertlens import'.",
	}
}

// ErrModelLoadFailed creates an error for a missing or malformed model asset
func ErrModelLoadFailed(model string, cause error) *UserError {
	return &UserError{
		Kind:    ErrModelLoad,
		Message: fmt.Sprintf("Failed to load model: %s", model),
		Cause:   cause,
		Suggestion: `Possible fixes:
       1. Check that the model file exists: bertlens models
       2. Download it: bertlens download ` + model + `
       3. Use the deterministic engine for a dry run: BERTLENS_ENGINE=hash`,
	}
}

// ErrBlankInput creates the error returned for empty or whitespace-only text
func ErrBlankInput() *UserError {
	return &UserError{
		Kind:    ErrInvalidInput,
		Message: "Text to analyze must not be blank",
	}
}

// ErrInferenceFailed creates an error for a failed or malformed inference call
func ErrInferenceFailed(model string, cause error) *UserError {
	return &UserError{
		Kind:    ErrInference,
		Message: fmt.Sprintf("Inference failed for model: %s", model),
		Cause:   cause,
	}
}

// ErrBedrockInvoke creates an error for Bedrock API issues
func ErrBedrockInvoke(cause error) *UserError {
	return &UserError{
		Kind:    ErrInference,
		Message: "Failed to call Bedrock API",
		Cause:   cause,
		Suggestion: `Possible issues:
       1. Check AWS credentials and region
       2. Verify Bedrock access is enabled in your AWS account
       3. Check IAM permissions for bedrock:InvokeModel
       4. Try a different embedding model with BERTLENS_BEDROCK_MODEL`,
	}
}

// ErrAWSConfig creates an error for AWS configuration issues
func ErrAWSConfig(cause error) *UserError {
	return &UserError{
		Kind:    ErrModelLoad,
		Message: "Failed to initialize AWS configuration",
		Cause:   cause,
		Suggestion: `Check your AWS credentials:
       1. Run 'aws configure' to set up credentials
       2. Or set AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_REGION`,
	}
}
