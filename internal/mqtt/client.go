package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"

	"github.com/supby/nodeconf/internal/configuration"
	"github.com/supby/nodeconf/internal/logger"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 256
	StatusOnline   = "Online"
	StatusOffline  = "Offline"
	GatewayStatus  = "gateway/status"
)

type MqttClient interface {
	Dispose()
	Publish(subTopic string, data []byte, retained bool) error
	Subscribe(callback func(topic string, message []byte))
	UnSubscribe()
	RootTopic() string
}

func NewClient(config *configuration.MqttConfiguration, l logger.Logger) (MqttClient, func(), error) {
	retClient := newDefaultMqttClient(config, l)

	mqttlib.ERROR = log.New(retClient.logger.GetWriter(), "[MQTT Client] ", 0)

	opts := mqttlib.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.Address, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.AutoReconnect = true
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(true)
	opts.SetWill(retClient.topic(GatewayStatus), StatusOffline, 0, true)
	opts.OnConnect = func(client mqttlib.Client) {
		retClient.logger.Info("Connected")
		retClient.subscribe(client)
	}
	opts.OnConnectionLost = func(client mqttlib.Client, err error) {
		retClient.logger.Warn("Connect lost: %v", err)
	}

	innerClient := mqttlib.NewClient(opts)
	retClient.innerClient = innerClient

	if token := innerClient.Connect(); token.Wait() && token.Error() != nil {
		retClient.stop()
		return nil, nil, fmt.Errorf("connecting to %v:%v: %w", config.Address, config.Port, token.Error())
	}

	retClient.logger.Info("Connected to MQTT on '%v:%v'", config.Address, config.Port)
	if err := retClient.Publish(GatewayStatus, []byte(StatusOnline), true); err != nil {
		retClient.logger.Warn("Publishing status: %v", err)
	}

	return retClient, func() { retClient.Dispose() }, nil
}

type incomingMessage struct {
	topic   string
	payload []byte
}

type defaultMqttClient struct {
	innerClient     mqttlib.Client
	mutex           sync.RWMutex
	messageCallback func(topic string, message []byte)
	configuration   configuration.MqttConfiguration
	logger          logger.Logger

	queue    chan incomingMessage
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newDefaultMqttClient(config *configuration.MqttConfiguration, l logger.Logger) *defaultMqttClient {
	ret := &defaultMqttClient{
		configuration: *config,
		logger:        l.WithPrefix("[MQTT Client]"),
		queue:         make(chan incomingMessage, queueSize),
		done:          make(chan struct{}),
	}

	ret.wg.Add(1)
	go ret.dispatch()

	return ret
}

// dispatch hands messages to the callback one at a time in arrival order.
// It runs outside paho's router goroutine so callbacks may publish and wait.
func (cl *defaultMqttClient) dispatch() {
	defer cl.wg.Done()

	for {
		select {
		case <-cl.done:
			return
		case msg := <-cl.queue:
			cl.mutex.RLock()
			callback := cl.messageCallback
			cl.mutex.RUnlock()

			if callback != nil {
				callback(msg.topic, msg.payload)
			}
		}
	}
}

func (cl *defaultMqttClient) stop() {
	cl.stopOnce.Do(func() { close(cl.done) })
	cl.wg.Wait()
}

// subscribe runs on every (re)connect so subscriptions survive broker restarts.
func (cl *defaultMqttClient) subscribe(client mqttlib.Client) {
	topic := fmt.Sprintf("%s/#", cl.configuration.RootTopic)
	if token := client.Subscribe(topic, 1, cl.onMessageReceived); token.Wait() && token.Error() != nil {
		cl.logger.Error("Subscribing to %v: %v", topic, token.Error())
	}
}

func (cl *defaultMqttClient) topic(subTopic string) string {
	return fmt.Sprintf("%v/%v", cl.configuration.RootTopic, subTopic)
}

func (cl *defaultMqttClient) RootTopic() string {
	return cl.configuration.RootTopic
}

func (cl *defaultMqttClient) Dispose() {
	cl.logger.Info("Disposing MQTT client")
	if err := cl.Publish(GatewayStatus, []byte(StatusOffline), true); err != nil {
		cl.logger.Warn("Publishing status: %v", err)
	}
	cl.innerClient.Disconnect(250)
	cl.stop()
}

func (cl *defaultMqttClient) Publish(subTopic string, data []byte, retained bool) error {
	token := cl.innerClient.Publish(cl.topic(subTopic), 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %v timed out", subTopic)
	}

	return token.Error()
}

func (cl *defaultMqttClient) Subscribe(callback func(topic string, message []byte)) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.messageCallback = callback
}

func (cl *defaultMqttClient) UnSubscribe() {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.messageCallback = nil
}

func (cl *defaultMqttClient) onMessageReceived(client mqttlib.Client, msg mqttlib.Message) {
	cl.enqueue(msg.Topic(), msg.Payload())
}

func (cl *defaultMqttClient) enqueue(topic string, payload []byte) {
	select {
	case <-cl.done:
	case cl.queue <- incomingMessage{topic: topic, payload: payload}:
	}
}
