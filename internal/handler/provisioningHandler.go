package handler

import (
	"context"
	"sync"

	"github.com/supby/nodeconf/internal/logger"
	"github.com/supby/nodeconf/internal/mqtt"
	"github.com/supby/nodeconf/internal/record"
	"github.com/supby/nodeconf/internal/router"
	"github.com/supby/nodeconf/internal/service"
	"github.com/supby/nodeconf/internal/types"
)

// ProvisioningHandler answers router requests with the provisioning service.
// The full configuration is kept retained on <device>/config while a record is
// confirmed, and cleared as soon as it is not.
// A request's change and the messages describing it are published under one
// lock, so publishes follow the order of the changes they report.
type ProvisioningHandler struct {
	router  router.MQTTRouter
	service *service.ProvisioningService
	logger  logger.Logger
	mutex   sync.Mutex
}

func NewProvisioningHandler(
	ctx context.Context,
	mqttRouter router.MQTTRouter,
	provisioningService *service.ProvisioningService,
	l logger.Logger) *ProvisioningHandler {
	h := &ProvisioningHandler{
		router:  mqttRouter,
		service: provisioningService,
		logger:  l.WithPrefix("[Provisioning Handler]"),
	}

	mqttRouter.SubscribeOnSetMessage(func(msg types.RecordSetMessage) {
		h.handleSet(ctx, msg)
	})
	mqttRouter.SubscribeOnGetMessage(func(msg types.RecordGetMessage) {
		h.handleGet(ctx, msg)
	})
	mqttRouter.SubscribeOnConfirmMessage(func(msg types.RecordConfirmMessage) {
		h.handleConfirm(ctx, msg)
	})
	mqttRouter.SubscribeOnDeleteMessage(func(msg types.RecordDeleteMessage) {
		h.handleDelete(ctx, msg)
	})
	mqttRouter.SubscribeOnGetDevicesMessage(func() {
		h.PublishDevices(ctx)
	})

	return h
}

func (h *ProvisioningHandler) handleSet(ctx context.Context, msg types.RecordSetMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var r *record.Record
	var err error
	if msg.BrokerPort != nil {
		r, err = h.service.SetBrokerPort(ctx, msg.DeviceID, *msg.BrokerPort)
	} else {
		r, err = h.service.SetField(ctx, msg.DeviceID, msg.Field, msg.Value)
	}

	if err != nil {
		h.router.PublishError(msg.DeviceID, err)
		return
	}

	h.publishRecord(msg.DeviceID, r)
}

func (h *ProvisioningHandler) handleGet(ctx context.Context, msg types.RecordGetMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	r, err := h.service.Get(ctx, msg.DeviceID)
	if err != nil {
		h.router.PublishError(msg.DeviceID, err)
		return
	}

	h.publishState(msg.DeviceID, r)
}

func (h *ProvisioningHandler) handleConfirm(ctx context.Context, msg types.RecordConfirmMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	var r *record.Record
	var err error
	if msg.Confirmed {
		r, err = h.service.Confirm(ctx, msg.DeviceID)
	} else {
		r, err = h.service.Unconfirm(ctx, msg.DeviceID)
	}

	if err != nil {
		h.router.PublishError(msg.DeviceID, err)
		return
	}

	h.publishRecord(msg.DeviceID, r)
}

func (h *ProvisioningHandler) handleDelete(ctx context.Context, msg types.RecordDeleteMessage) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err := h.service.Delete(ctx, msg.DeviceID); err != nil {
		h.router.PublishError(msg.DeviceID, err)
		return
	}

	h.router.ClearDeviceMessage(msg.DeviceID, router.MQTT_DEVICE_CONFIG)
}

func (h *ProvisioningHandler) PublishDevices(ctx context.Context) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	records, err := h.service.List(ctx)
	if err != nil {
		h.logger.Error("Listing records: %v", err)
		return
	}

	devices := mqtt.DevicesMessage{Devices: make([]mqtt.DeviceSummary, 0, len(records))}
	for _, stored := range records {
		devices.Devices = append(devices.Devices, mqtt.DeviceSummary{
			DeviceID:  stored.DeviceID,
			Schema:    stored.Record.Version(),
			Confirmed: stored.Record.IsConfirmed(),
		})
	}

	h.router.PublishGatewayMessage(devices, router.MQTT_DEVICES)
}

// PublishConfigs retains the configuration of every confirmed record,
// so nodes that connect later receive it.
func (h *ProvisioningHandler) PublishConfigs(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	records, err := h.service.List(ctx)
	if err != nil {
		return err
	}

	published := 0
	for _, stored := range records {
		if stored.Record.IsConfirmed() {
			h.publishConfig(stored.DeviceID, stored.Record)
			published++
		}
	}

	h.logger.Info("Published %d of %d configurations", published, len(records))

	return nil
}

func (h *ProvisioningHandler) publishRecord(deviceID string, r *record.Record) {
	h.publishState(deviceID, r)
	h.publishConfig(deviceID, r)
}

func (h *ProvisioningHandler) publishState(deviceID string, r *record.Record) {
	h.router.PublishDeviceMessage(deviceID, mqtt.DeviceStateMessage{
		DeviceID: deviceID,
		Record:   r.StateView(),
	}, router.MQTT_DEVICE_STATE, false)
}

func (h *ProvisioningHandler) publishConfig(deviceID string, r *record.Record) {
	v, err := r.ExportView()
	if err != nil {
		h.router.ClearDeviceMessage(deviceID, router.MQTT_DEVICE_CONFIG)
		return
	}

	h.router.PublishDeviceMessage(deviceID, v, router.MQTT_DEVICE_CONFIG, true)
}
