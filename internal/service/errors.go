package service

import (
	stderrors "errors"

	"github.com/juju/errors"

	"github.com/supby/nodeconf/internal/db"
	"github.com/supby/nodeconf/internal/record"
)

const (
	CodeFieldTooLong          = "field_too_long"
	CodeInvalidFieldName      = "invalid_field_name"
	CodeInvalidFieldValue     = "invalid_field_value"
	CodeUnconfirmedRecordUsed = "unconfirmed_record_used"
	CodeRecordNotFound        = "record_not_found"
	CodeRecordExists          = "record_exists"
	CodeInvalidDeviceID       = "invalid_device_id"
	CodeMalformedMessage      = "malformed_message"
	CodeInternal              = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{record.ErrFieldTooLong, CodeFieldTooLong},
	{record.ErrInvalidFieldName, CodeInvalidFieldName},
	{record.ErrInvalidFieldValue, CodeInvalidFieldValue},
	{record.ErrUnconfirmedRecordUsed, CodeUnconfirmedRecordUsed},
	{db.ErrRecordNotFound, CodeRecordNotFound},
	{db.ErrInvalidDeviceID, CodeInvalidDeviceID},
	{ErrRecordExists, CodeRecordExists},
}

// ErrorCode maps an error to the stable code reported to MQTT clients.
func ErrorCode(err error) string {
	cause := errors.Cause(err)
	for _, c := range codes {
		if stderrors.Is(cause, c.err) {
			return c.code
		}
	}

	return CodeInternal
}

// FieldOf returns the field an error refers to, if any.
func FieldOf(err error) record.FieldName {
	var fieldErr *record.FieldError
	if stderrors.As(errors.Cause(err), &fieldErr) {
		return fieldErr.Field
	}

	return ""
}
