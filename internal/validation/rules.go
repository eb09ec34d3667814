// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/eventrelay/internal/errors"
)

var (
	// eventNameRegex accepts dotted lowercase names such as "chat.message_sent"
	eventNameRegex = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// EventName validates the format of an event name
var EventName = validation.NewStringRuleWithError(
	func(s string) bool {
		return eventNameRegex.MatchString(s)
	},
	validation.NewError(
		"validation_event_name",
		"must be lowercase dot separated words of letters, digits and underscores",
	),
)

// JSONObject validates that a byte slice holds a single JSON object
var JSONObject = validation.By(func(value interface{}) error {
	raw, ok := value.([]byte)
	if !ok {
		if r, isRaw := value.(json.RawMessage); isRaw {
			raw, ok = r, true
		}
	}
	if !ok {
		return validation.NewError("validation_json_type", "must be a byte slice")
	}
	if len(raw) == 0 {
		return nil // Let Required handle empty bodies
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return validation.NewError("validation_json_object", "must be a JSON object")
	}
	return nil
})

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
