package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/kjh948/plen3/helpers"
	"github.com/kjh948/plen3/log2"
)

type transportMqtt struct {
	log            *log2.Log
	m              mqtt.Client
	networkTimeout time.Duration

	topicConnect string
	topicState   string
	topicError   string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, c Config, device string, willPayload []byte) error {
	if c.Broker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if c.LogDebug {
		mqtt.DEBUG = log
	}

	clientID := fmt.Sprintf("plen-%s", device)
	prefix := fmt.Sprintf("plen/%s", device)
	self.topicConnect = prefix + "/c"
	self.topicState = prefix + "/state"
	self.topicError = prefix + "/error"
	self.networkTimeout = helpers.IntSecondDefault(c.NetworkTimeoutSec, DefaultNetworkTimeout)
	keepAlive := helpers.IntSecondDefault(c.KeepaliveSec, 60*time.Second)
	credFun := func() (string, string) {
		return c.Username, c.Password
	}

	mopt := mqtt.NewClientOptions().
		AddBroker(c.Broker).
		SetBinaryWill(self.topicState, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientID).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(self.networkTimeout).
		SetConnectRetryInterval(keepAlive / 2).
		SetConnectRetry(true).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = mqtt.NewClient(mopt)
	if token := self.m.Connect(); token.Error() != nil {
		self.log.Errorf("mqtt connect broker=%s err=%v", c.Broker, token.Error())
	}
	return nil
}

// SendState is retained so new subscribers see current link state.
func (self *transportMqtt) SendState(payload []byte) bool {
	return self.publish(self.topicState, true, payload)
}

func (self *transportMqtt) SendError(payload []byte) bool {
	return self.publish(self.topicError, false, payload)
}

func (self *transportMqtt) publish(topic string, retained bool, payload []byte) bool {
	token := self.m.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(self.networkTimeout) {
		self.log.Debugf("mqtt publish topic=%s timeout", topic)
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Errorf("mqtt publish topic=%s err=%v", topic, err)
		return false
	}
	return true
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	if self.m.IsConnected() {
		self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(time.Second)
	}
	self.m.Disconnect(250)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
