package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxCaseKeyLength = 255

func NormalizeCaseKey(v string) string {
	return strings.TrimSpace(v)
}

func ValidateCaseKey(v string) error {
	trimmed := NormalizeCaseKey(v)
	if trimmed == "" {
		return fmt.Errorf("%w: caseId is required", ErrInvalidInput)
	}
	if !utf8.ValidString(trimmed) {
		return fmt.Errorf("%w: caseId must be valid UTF-8", ErrInvalidInput)
	}
	if utf8.RuneCountInString(trimmed) > maxCaseKeyLength {
		return fmt.Errorf("%w: caseId must be <= %d chars", ErrInvalidInput, maxCaseKeyLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: caseId contains control characters", ErrInvalidInput)
		}
	}
	return nil
}

func ValidateEnvelope(env CorrelationEnvelope) error {
	if strings.TrimSpace(env.CorrelationID) == "" {
		return fmt.Errorf("%w: requestId is required", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(env.Key) == "" {
		return fmt.Errorf("%w: caseId is required", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidEnvelope)
	}
	return nil
}
