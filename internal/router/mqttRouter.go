package router

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/supby/nodeconf/internal/db"
	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/mqtt"
	"github.com/supby/nodeconf/internal/record"
	"github.com/supby/nodeconf/internal/service"
	"github.com/supby/nodeconf/internal/types"
	"github.com/supby/nodeconf/internal/utils/reflector"
)

const (
	MQTT_DEVICE_SET       = "set"
	MQTT_DEVICE_GET       = "get"
	MQTT_DEVICE_CONFIRM   = "confirm"
	MQTT_DEVICE_UNCONFIRM = "unconfirm"
	MQTT_DEVICE_DELETE    = "delete"
	MQTT_DEVICE_STATE     = "state"
	MQTT_DEVICE_CONFIG    = "config"
	MQTT_DEVICE_ERROR     = "error"
	MQTT_GET_DEVICES      = "get_devices"
	MQTT_DEVICES          = "devices"
	MQTT_GATEWAY          = "gateway"
)

type mqttRouter struct {
	mqttClient mqtt.MqttClient
	logger     logger.Logger

	mutex               sync.RWMutex
	onSetMessage        func(msg types.RecordSetMessage)
	onGetMessage        func(msg types.RecordGetMessage)
	onConfirmMessage    func(msg types.RecordConfirmMessage)
	onDeleteMessage     func(msg types.RecordDeleteMessage)
	onGetDevicesMessage func()
}

func NewMQTTRouter(mqttClient mqtt.MqttClient, l logger.Logger) MQTTRouter {
	ret := &mqttRouter{
		mqttClient: mqttClient,
		logger:     l.WithPrefix("[MQTT Router]"),
	}

	mqttClient.Subscribe(ret.mqttMessage)

	return ret
}

func (h *mqttRouter) PublishDeviceMessage(deviceID string, msg interface{}, subtopic string, retained bool) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error Marshal %v message: %v", subtopic, err)
		return
	}

	h.publish(fmt.Sprintf("%v/%v", deviceID, subtopic), jsonData, retained)
}

// ClearDeviceMessage removes a retained message from the broker.
func (h *mqttRouter) ClearDeviceMessage(deviceID string, subtopic string) {
	h.publish(fmt.Sprintf("%v/%v", deviceID, subtopic), []byte{}, true)
}

func (h *mqttRouter) PublishGatewayMessage(msg interface{}, subtopic string) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Error Marshal gateway %v message: %v", subtopic, err)
		return
	}

	h.publish(fmt.Sprintf("%v/%v", MQTT_GATEWAY, subtopic), jsonData, false)
}

func (h *mqttRouter) PublishError(deviceID string, err error) {
	h.logger.Warn("Request for %v failed: %v", deviceID, err)

	h.PublishDeviceMessage(deviceID, mqtt.ErrorMessage{
		Error: err.Error(),
		Code:  service.ErrorCode(err),
		Field: string(service.FieldOf(err)),
	}, MQTT_DEVICE_ERROR, false)
}

func (h *mqttRouter) publish(subTopic string, data []byte, retained bool) {
	if err := h.mqttClient.Publish(subTopic, data, retained); err != nil {
		h.logger.Error("Error publishing to %v: %v", subTopic, err)
	}
}

func (h *mqttRouter) SubscribeOnSetMessage(callback func(msg types.RecordSetMessage)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onSetMessage = callback
}

func (h *mqttRouter) SubscribeOnGetMessage(callback func(msg types.RecordGetMessage)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onGetMessage = callback
}

func (h *mqttRouter) SubscribeOnConfirmMessage(callback func(msg types.RecordConfirmMessage)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onConfirmMessage = callback
}

func (h *mqttRouter) SubscribeOnDeleteMessage(callback func(msg types.RecordDeleteMessage)) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onDeleteMessage = callback
}

func (h *mqttRouter) SubscribeOnGetDevicesMessage(callback func()) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.onGetDevicesMessage = callback
}

// mqttMessage handles <root>/<device>/<command> and <root>/gateway/<command>.
// Messages this service publishes itself arrive here too and are ignored.
func (h *mqttRouter) mqttMessage(topic string, message []byte) {
	rest := strings.TrimPrefix(topic, h.mqttClient.RootTopic()+"/")
	if rest == topic {
		return
	}

	topicParts := strings.Split(rest, "/")
	if len(topicParts) != 2 {
		return
	}

	if topicParts[0] == MQTT_GATEWAY {
		h.handleGatewayMessage(topicParts[1])
		return
	}

	h.handleDeviceMessage(topicParts[0], topicParts[1], message)
}

func (h *mqttRouter) handleGatewayMessage(command string) {
	if command != MQTT_GET_DEVICES {
		return
	}

	h.mutex.RLock()
	callback := h.onGetDevicesMessage
	h.mutex.RUnlock()

	if callback != nil {
		callback()
	}
}

func (h *mqttRouter) handleDeviceMessage(deviceID string, command string, message []byte) {
	switch command {
	case MQTT_DEVICE_SET, MQTT_DEVICE_GET, MQTT_DEVICE_CONFIRM, MQTT_DEVICE_UNCONFIRM, MQTT_DEVICE_DELETE:
	default:
		return
	}

	if err := db.ValidateDeviceID(deviceID); err != nil {
		h.logger.Warn("Ignoring %v for invalid device %q", command, deviceID)
		return
	}

	h.logger.Debug("%v message received. Device:%v", command, deviceID)

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	switch command {
	case MQTT_DEVICE_SET:
		h.handleDeviceSetCommand(deviceID, message)
	case MQTT_DEVICE_GET:
		if h.onGetMessage != nil {
			h.onGetMessage(types.RecordGetMessage{DeviceID: deviceID})
		}
	case MQTT_DEVICE_CONFIRM, MQTT_DEVICE_UNCONFIRM:
		if h.onConfirmMessage != nil {
			h.onConfirmMessage(types.RecordConfirmMessage{
				DeviceID:  deviceID,
				Confirmed: command == MQTT_DEVICE_CONFIRM,
			})
		}
	case MQTT_DEVICE_DELETE:
		if h.onDeleteMessage != nil {
			h.onDeleteMessage(types.RecordDeleteMessage{DeviceID: deviceID})
		}
	}
}

func (h *mqttRouter) handleDeviceSetCommand(deviceID string, message []byte) {
	msg, err := parseSetMessage(deviceID, message)
	if err != nil {
		h.logger.Warn("Error unmarshal SET message: %v", err)
		h.PublishDeviceMessage(deviceID, mqtt.ErrorMessage{
			Error: err.Error(),
			Code:  service.CodeMalformedMessage,
		}, MQTT_DEVICE_ERROR, false)
		return
	}

	if h.onSetMessage != nil {
		h.onSetMessage(msg)
	}
}

func parseSetMessage(deviceID string, message []byte) (types.RecordSetMessage, error) {
	var setMsg mqtt.SetMessage
	if err := json.Unmarshal(message, &setMsg); err != nil {
		return types.RecordSetMessage{}, err
	}
	if setMsg.BrokerPort != nil {
		if setMsg.Field != "" {
			return types.RecordSetMessage{}, fmt.Errorf("field and brokerPort given together")
		}
		setMsg.Field = record.FieldBrokerPort
		setMsg.Value = setMsg.BrokerPort
	}
	if setMsg.Field == "" {
		return types.RecordSetMessage{}, fmt.Errorf("missing field")
	}

	ret := types.RecordSetMessage{
		DeviceID: deviceID,
		Field:    setMsg.Field,
	}

	if setMsg.Field == record.FieldBrokerPort {
		port, err := reflector.ConvertType(setMsg.Value, reflect.Uint16)
		if err != nil {
			return types.RecordSetMessage{}, fmt.Errorf("brokerPort: %w", err)
		}
		p := port.(uint16)
		ret.BrokerPort = &p

		return ret, nil
	}

	value, ok := setMsg.Value.(string)
	if !ok {
		return types.RecordSetMessage{}, fmt.Errorf("%v: value must be a string", setMsg.Field)
	}
	ret.Value = value

	return ret, nil
}
