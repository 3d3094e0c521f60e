package router

import (
	"github.com/supby/nodeconf/internal/types"
)

type MQTTRouter interface {
	PublishDeviceMessage(deviceID string, msg interface{}, subtopic string, retained bool)
	ClearDeviceMessage(deviceID string, subtopic string)
	PublishGatewayMessage(msg interface{}, subtopic string)
	PublishError(deviceID string, err error)

	SubscribeOnSetMessage(callback func(msg types.RecordSetMessage))
	SubscribeOnGetMessage(callback func(msg types.RecordGetMessage))
	SubscribeOnConfirmMessage(callback func(msg types.RecordConfirmMessage))
	SubscribeOnDeleteMessage(callback func(msg types.RecordDeleteMessage))
	SubscribeOnGetDevicesMessage(callback func())
}
