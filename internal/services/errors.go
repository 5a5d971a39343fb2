package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrConfiguration          = errors.New("configuration error")
	ErrNotFound               = errors.New("not found")
	ErrConveyorBusy           = errors.New("conveyor busy")
	ErrPassPhraseInvalid      = errors.New("pass phrase invalid")
	ErrPassPhraseNotValidated = errors.New("pass phrase not validated")
	ErrExecution              = errors.New("execution error")
	ErrTransient              = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker so callers can classify it with errors.Is. The marker
// should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Validation is shorthand for Wrap(ErrValidation, ...) without a cause.
func Validation(component, operation, message string) error {
	return Wrap(ErrValidation, component, operation, message, nil)
}

// Busy reports that the queue lock rejected the caller.
func Busy(component, operation string) error {
	return Wrap(ErrConveyorBusy, component, operation, "queue is not idle, retry later", nil)
}

// Error kinds carried across process boundaries where the sentinel identity is lost.
const (
	KindValidation             = "validation"
	KindConfiguration          = "configuration"
	KindNotFound               = "not_found"
	KindBusy                   = "busy"
	KindPassPhraseInvalid      = "pass_phrase_invalid"
	KindPassPhraseNotValidated = "pass_phrase_not_validated"
	KindExecution              = "execution"
	KindTransient              = "transient"
)

var kindMarkers = []struct {
	kind   string
	marker error
}{
	{KindValidation, ErrValidation},
	{KindConfiguration, ErrConfiguration},
	{KindNotFound, ErrNotFound},
	{KindBusy, ErrConveyorBusy},
	{KindPassPhraseInvalid, ErrPassPhraseInvalid},
	{KindPassPhraseNotValidated, ErrPassPhraseNotValidated},
	{KindTransient, ErrTransient},
	{KindExecution, ErrExecution},
}

// KindOf returns the error kind for err, defaulting to execution.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	return KindExecution
}

// FromKind rebuilds a marked error from a kind and message received over IPC.
func FromKind(kind, message string) error {
	message = strings.TrimSpace(message)
	for _, km := range kindMarkers {
		if km.kind == kind {
			prefix := km.marker.Error() + ": "
			return fmt.Errorf("%w: %s", km.marker, strings.TrimPrefix(message, prefix))
		}
	}
	return errors.New(message)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
