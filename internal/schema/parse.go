package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseMessage decodes and validates a queue message body. A JSON syntax
// error is reported distinctly from a schema violation so callers can
// tell MESSAGE_PARSE_ERROR apart from SCHEMA_INVALID.
func ParseMessage(body []byte) (TileJobMessage, error) {
	var msg TileJobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return TileJobMessage{}, &ParseError{Err: err}
	}
	if err := msg.Validate(); err != nil {
		return TileJobMessage{}, &SchemaError{Err: err}
	}
	return msg, nil
}

// Validate runs struct-tag validation followed by the cross-field check
// that ties coordinate fields to ImagerySource.
func (m TileJobMessage) Validate() error {
	if err := structValidator.Struct(m); err != nil {
		return err
	}
	return m.ValidateSourceFields()
}

// ParseError indicates a message body that is not well-formed JSON.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return fmt.Sprintf("message parse error: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// SchemaError indicates a message body that parsed but violated the
// schema's field constraints.
type SchemaError struct{ Err error }

func (e *SchemaError) Error() string { return fmt.Sprintf("schema invalid: %v", e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }
