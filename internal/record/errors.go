package record

import (
	"errors"
	"fmt"
)

var (
	ErrFieldTooLong          = errors.New("field too long")
	ErrInvalidFieldName      = errors.New("invalid field name")
	ErrInvalidFieldValue     = errors.New("invalid field value")
	ErrUnconfirmedRecordUsed = errors.New("unconfirmed record used")
	ErrUnsupportedSchema     = errors.New("unsupported schema version")
	ErrSchemaDowngrade       = errors.New("schema downgrade")
	ErrMalformedRecord       = errors.New("malformed record")
)

// FieldError ties a record error to the field that caused it.
type FieldError struct {
	Field  FieldName
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %v", e.Field, e.Err)
	}

	return fmt.Sprintf("%v: %v (%v)", e.Field, e.Err, e.Detail)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldError(field FieldName, err error, format string, v ...interface{}) error {
	return &FieldError{
		Field:  field,
		Err:    err,
		Detail: fmt.Sprintf(format, v...),
	}
}
