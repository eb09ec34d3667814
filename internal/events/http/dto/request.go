// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"encoding/json"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/eventrelay/internal/validation"
)

// DispatchEventRequest contains the parameters for dispatching an event.
// The event name is extracted from the URL parameter and the body is the event itself.
type DispatchEventRequest struct {
	Name string
	Body json.RawMessage
}

// Validate checks if the dispatch event request is valid.
func (r *DispatchEventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name,
			validation.Required,
			validation.Length(1, 255),
			customValidation.EventName,
		),
		validation.Field(&r.Body,
			validation.Required,
			customValidation.JSONObject,
		),
	)
}
