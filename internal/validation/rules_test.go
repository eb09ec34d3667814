package validation

import (
	"encoding/json"
	"errors"
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/eventrelay/internal/errors"
)

func TestEventName(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{name: "single word", value: "heartbeat", shouldErr: false},
		{name: "dotted", value: "chat.message_sent", shouldErr: false},
		{name: "multiple segments", value: "sandbox.v2.execution_finished", shouldErr: false},
		{name: "uppercase", value: "Chat.MessageSent", shouldErr: true},
		{name: "leading dot", value: ".chat", shouldErr: true},
		{name: "trailing dot", value: "chat.", shouldErr: true},
		{name: "empty segment", value: "chat..sent", shouldErr: true},
		{name: "whitespace", value: "chat sent", shouldErr: true},
		{name: "dash", value: "file-uploaded", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Validate(tt.value, EventName)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJSONObject(t *testing.T) {
	tests := []struct {
		name      string
		value     interface{}
		shouldErr bool
	}{
		{name: "object", value: []byte(`{"file_id":"f-1"}`), shouldErr: false},
		{name: "empty object", value: []byte(`{}`), shouldErr: false},
		{name: "raw message", value: json.RawMessage(`{"a":1}`), shouldErr: false},
		{name: "empty is left to required", value: []byte{}, shouldErr: false},
		{name: "array", value: []byte(`[1,2]`), shouldErr: true},
		{name: "scalar", value: []byte(`"text"`), shouldErr: true},
		{name: "malformed", value: []byte(`{"a":`), shouldErr: true},
		{name: "wrong type", value: "not bytes", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Validate(tt.value, JSONObject)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, validation.Validate("notify_warehouse", NoWhitespace))
	assert.Error(t, validation.Validate(" notify_warehouse", NoWhitespace))
	assert.Error(t, validation.Validate("notify_warehouse\n", NoWhitespace))
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, validation.Validate("x", NotBlank))
	assert.Error(t, validation.Validate("   ", NotBlank))
}

func TestWrapValidationError(t *testing.T) {
	assert.Nil(t, WrapValidationError(nil))

	err := WrapValidationError(errors.New("name: must not be blank"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "must not be blank")
}
