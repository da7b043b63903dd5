// Package notify は在席イベントをMQTTブローカーへ配信する
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"kaomiru/internal/session"
)

// publishTimeout はPublishの完了を待つ最大時間
const publishTimeout = 5 * time.Second

// Options はMQTT接続の設定
type Options struct {
	Broker         string
	Topic          string
	ClientID       string
	ConnectTimeout time.Duration
}

// MQTTPublisher は session.EventSink のMQTT実装
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// Connect はブローカーに接続してMQTTPublisherを作成する
// ClientID が空の場合はUUIDを使う
func Connect(opts Options) (*MQTTPublisher, error) {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "kaomiru-" + uuid.NewString()
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	log.Println("MQTTに接続しています", opts.Broker, "client ID:", clientID)
	clientOpts := mqtt.NewClientOptions().AddBroker(opts.Broker).SetClientID(clientID)
	clientOpts.SetKeepAlive(30 * time.Second)
	clientOpts.SetConnectTimeout(connectTimeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Printf("MQTT接続が切断されました: %v", err)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("MQTT接続がタイムアウトしました: %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT接続に失敗: %w", err)
	}

	log.Println("MQTTに接続しました")
	return &MQTTPublisher{client: client, topic: opts.Topic}, nil
}

// Publish はイベントをJSONで送信する。完了は待たない
func (p *MQTTPublisher) Publish(event session.Event) {
	data, err := encodeEvent(event)
	if err != nil {
		log.Printf("[MQTT] イベントのエンコードに失敗: %v", err)
		return
	}

	token := p.client.Publish(p.topic, 0, false, data)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("[MQTT] %s への送信がタイムアウトしました", p.topic)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("[MQTT] %s への送信に失敗: %v", p.topic, err)
		}
	}()
}

// Close はブローカーから切断する
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func encodeEvent(event session.Event) ([]byte, error) {
	return json.Marshal(event)
}
