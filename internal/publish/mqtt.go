// Package publish mirrors live state onto an MQTT broker so dashboards
// and automations can consume it without polling the HTTP API.
package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/wattscope/wattscope/internal/domain"
)

const (
	queueDepth     = 64
	publishTimeout = 5 * time.Second
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// Publisher pushes readings and anomaly transitions to MQTT topics under
// a configurable prefix. Messages go through a bounded queue drained by
// its own goroutine, so the sync loops never wait on the broker: a full
// queue drops the message. A nil *Publisher is valid and publishes
// nothing.
type Publisher struct {
	client mqtt.Client
	prefix string
	log    zerolog.Logger

	queue chan message
	quit  chan struct{}
	wg    sync.WaitGroup
}

// Connect dials the broker and starts the sender goroutine. An empty
// broker URL returns a nil publisher without error.
func Connect(broker, prefix string, log zerolog.Logger) (*Publisher, error) {
	if broker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("wattscope-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p := &Publisher{
		client: client,
		prefix: prefix,
		log:    log.With().Str("component", "publish").Logger(),
		queue:  make(chan message, queueDepth),
		quit:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// PublishRealtime enqueues one instantaneous reading. Never blocks.
func (p *Publisher) PublishRealtime(r domain.RealtimeReading) {
	if p == nil {
		return
	}
	p.enqueue("realtime", 0, false, r)
}

// PublishTrend enqueues one refreshed roll-up on its period topic. Never
// blocks.
func (p *Publisher) PublishTrend(t domain.TrendReading) {
	if p == nil {
		return
	}
	p.enqueue("trends/"+string(t.Period), 0, false, t)
}

// PublishAnomaly enqueues the anomaly state. Retained, so late
// subscribers see the current flag immediately. Never blocks.
func (p *Publisher) PublishAnomaly(s domain.AnomalySnapshot) {
	if p == nil {
		return
	}
	p.enqueue("anomaly", 1, true, s)
}

func (p *Publisher) enqueue(suffix string, qos byte, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", suffix).Msg("marshal payload")
		return
	}
	msg := message{topic: p.prefix + "/" + suffix, qos: qos, retained: retained, payload: payload}
	select {
	case p.queue <- msg:
	default:
		p.log.Debug().Str("topic", msg.topic).Msg("publish queue full, dropping message")
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case msg := <-p.queue:
			token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
			if !token.WaitTimeout(publishTimeout) {
				p.log.Warn().Str("topic", msg.topic).Msg("publish timed out")
			} else if token.Error() != nil {
				p.log.Warn().Err(token.Error()).Str("topic", msg.topic).Msg("publish failed")
			}
		}
	}
}

// Close stops the sender and disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	close(p.quit)
	p.wg.Wait()
	p.client.Disconnect(250)
}
