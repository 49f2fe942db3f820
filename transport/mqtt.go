package transport

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"

	"github.com/ecoledger/carbonet/helpers"
	"github.com/ecoledger/carbonet/log2"
)

const defaultConnectTimeout = 30 * time.Second

type MQTTOptions struct {
	Broker       string
	ClientID     string
	Password     string
	TopicPrefix  string
	KeepaliveSec int
	LogDebug     bool
}

// MQTT is a Net over a shared broker. One topic per destination address
// under TopicPrefix. Publishes use QoS 0: at-most-once, matching the
// pipeline's delivery model.
type MQTT struct {
	log    *log2.Log
	opt    MQTTOptions
	client mqtt.Client
}

func NewMQTT(log *log2.Log, opt MQTTOptions) (*MQTT, error) {
	if opt.Broker == "" {
		return nil, errors.Errorf("transport: mqtt broker not configured")
	}
	m := &MQTT{log: log, opt: opt}
	mqtt.ERROR = m.log
	mqtt.CRITICAL = m.log
	mqtt.WARN = m.log
	if opt.LogDebug {
		mqtt.DEBUG = m.log
	}

	keepAlive := helpers.IntSecondDefault(opt.KeepaliveSec, 60*time.Second)
	mopt := mqtt.NewClientOptions().
		AddBroker(opt.Broker).
		SetClientID(opt.ClientID).
		SetCredentialsProvider(func() (string, string) { return opt.ClientID, opt.Password }).
		SetKeepAlive(keepAlive).
		SetPingTimeout(keepAlive / 2).
		SetOrderMatters(false).
		SetCleanSession(true)
	m.client = mqtt.NewClient(mopt)
	token := m.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, errors.Errorf("transport: mqtt connect timeout broker=%s", opt.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Annotatef(err, "transport: mqtt connect broker=%s", opt.Broker)
	}
	m.log.Debugf("mqtt connected broker=%s client=%s", opt.Broker, opt.ClientID)
	return m, nil
}

func (m *MQTT) Bind(addr string, h Handler) (Binding, error) {
	if h == nil {
		return nil, errors.Errorf("transport: nil handler addr=%s", addr)
	}
	topic := m.topic(addr)
	token := m.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Payload())
	})
	if token.Wait(); token.Error() != nil {
		return nil, errors.Annotatef(token.Error(), "transport: mqtt subscribe topic=%s", topic)
	}
	return &mqttBinding{m: m, topic: topic}, nil
}

func (m *MQTT) Open(addr string) (Sender, error) {
	return &mqttSender{m: m, topic: m.topic(addr)}, nil
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) topic(addr string) string {
	if m.opt.TopicPrefix == "" {
		return addr
	}
	return fmt.Sprintf("%s/%s", m.opt.TopicPrefix, addr)
}

type mqttSender struct {
	m     *MQTT
	topic string
}

func (s *mqttSender) Send(payload []byte) bool {
	if !s.m.client.IsConnected() {
		return false
	}
	token := s.m.client.Publish(s.topic, 0, false, payload)
	if err := token.Error(); err != nil {
		s.m.log.Errorf("mqtt publish topic=%s err=%v", s.topic, err)
		return false
	}
	return true
}

func (s *mqttSender) Close() error { return nil }

type mqttBinding struct {
	m     *MQTT
	topic string
}

func (b *mqttBinding) Close() error {
	token := b.m.client.Unsubscribe(b.topic)
	if token.Wait(); token.Error() != nil {
		return errors.Annotatef(token.Error(), "transport: mqtt unsubscribe topic=%s", b.topic)
	}
	return nil
}
