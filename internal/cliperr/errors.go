package cliperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/clipwave/pkg/log"
)

type ErrorType int

const (
	ErrAcquisitionFailed ErrorType = iota
	ErrTranscriptionFailed
	ErrSelectionFailed
	ErrNoValidSegments
	ErrRenderFailed
	ErrValidation
	ErrConfig
	ErrUnknown
)

// ClipError is the error every pipeline stage reports. Its Error() text is
// what a failed job shows as its error detail.
type ClipError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *ClipError {
	return &ClipError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *ClipError {
	return &ClipError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *ClipError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *ClipError) Unwrap() error {
	return e.Cause
}

func (e *ClipError) WithContext(key string, value any) *ClipError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrAcquisitionFailed:
		return "AcquisitionFailed"
	case ErrTranscriptionFailed:
		return "TranscriptionFailed"
	case ErrSelectionFailed:
		return "SelectionFailed"
	case ErrNoValidSegments:
		return "NoValidSegments"
	case ErrRenderFailed:
		return "RenderFailed"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *ClipError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with operator advice. It reports false for errors that are
// not a *ClipError.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var clipErr *ClipError
	if !errors.As(err, &clipErr) {
		log.Error("Unknown error: %v", err)
		return false
	}

	log.Error("Error detail: %v | advice: %s", err, h.GetAdvice(clipErr))
	return true
}

func (h *DefaultErrorHandler) GetAdvice(err *ClipError) string {
	switch err.Type {
	case ErrAcquisitionFailed:
		return "The source could not be downloaded with any strategy; refresh the cookie bundle or check that the URL is public"
	case ErrTranscriptionFailed:
		return "Check the whisper binary and model paths, or the transcription API key and endpoint"
	case ErrSelectionFailed:
		return "The language model did not return a usable range list; check the LLM endpoint and model"
	case ErrNoValidSegments:
		return "Every selected range fell outside the video; try a more specific instruction"
	case ErrRenderFailed:
		return "Check that ffmpeg is installed and the working directory is writable"
	case ErrValidation:
		return "Verify request parameters; the source URL cannot be empty"
	case ErrConfig:
		return "Check environment variables and the runtime settings file"
	default:
		return "Review the detailed error information and the relevant configuration"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var clipErr *ClipError
	if errors.As(err, &clipErr) {
		return clipErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *ClipError {
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute runs fn and converts a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
