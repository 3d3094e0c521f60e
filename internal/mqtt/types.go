package mqtt

import "github.com/supby/nodeconf/internal/record"

// SetMessage is the payload of <root>/<device>/set, either
// {"field": "...", "value": ...} or the shorthand {"brokerPort": 1883}.
// Value is a string for text fields; brokerPort also accepts a number.
type SetMessage struct {
	Field      record.FieldName `json:"field,omitempty"`
	Value      interface{}      `json:"value,omitempty"`
	BrokerPort interface{}      `json:"brokerPort,omitempty"`
}

type ErrorMessage struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

type DeviceStateMessage struct {
	DeviceID string      `json:"deviceId"`
	Record   record.View `json:"record"`
}

type DeviceSummary struct {
	DeviceID  string               `json:"deviceId"`
	Schema    record.SchemaVersion `json:"schema"`
	Confirmed bool                 `json:"confirmed"`
}

type DevicesMessage struct {
	Devices []DeviceSummary `json:"devices"`
}
