package types

import "github.com/supby/nodeconf/internal/record"

type RecordSetMessage struct {
	DeviceID   string
	Field      record.FieldName
	Value      string
	BrokerPort *uint16
}

type RecordGetMessage struct {
	DeviceID string
}

type RecordConfirmMessage struct {
	DeviceID  string
	Confirmed bool
}

type RecordDeleteMessage struct {
	DeviceID string
}

