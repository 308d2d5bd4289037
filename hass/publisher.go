package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
)

// Transport is what the publisher needs from an MQTT client.
type Transport interface {
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler MessageHandler) error
}

// Panel reports whether the alarm panel is reachable.
type Panel interface {
	Connected() bool
}

type PublisherOptions struct {
	DiscoveryPrefix string
	// Node groups all topics of this bridge, usually the sanitized unique id.
	Node    string
	Version string
}

type entry struct {
	component   string
	entity      entities.Entity
	object      string
	state       func() string
	deviceClass string
	icon        string
	command     bool
}

// Publisher announces entities through MQTT discovery and keeps their state
// topics in sync with the panel.
type Publisher struct {
	transport Transport
	panel     Panel
	opts      PublisherOptions

	entries  []*entry
	bySignal map[envisalink.Update][]*entry
	switches map[string]*entities.Switch
	lastMu   sync.Mutex
	last     map[string]string
	ctx      context.Context
}

func NewPublisher(transport Transport, panel Panel, opts PublisherOptions) *Publisher {
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	opts.Node = ObjectID(opts.Node)
	return &Publisher{
		transport: transport,
		panel:     panel,
		opts:      opts,
		bySignal:  map[envisalink.Update][]*entry{},
		switches:  map[string]*entities.Switch{},
		last:      map[string]string{},
		ctx:       context.Background(),
	}
}

func (p *Publisher) add(e *entry) {
	e.object = ObjectID(e.entity.UniqueID())
	p.entries = append(p.entries, e)
	p.bySignal[e.entity.Signal()] = append(p.bySignal[e.entity.Signal()], e)
}

func (p *Publisher) AddBinarySensors(sensors ...*entities.BinarySensor) {
	for _, s := range sensors {
		p.add(&entry{
			component:   componentBinarySensor,
			entity:      s,
			deviceClass: s.DeviceClass(),
			state:       func() string { return onOff(s.IsOn()) },
		})
	}
}

func (p *Publisher) AddSensors(sensors ...*entities.Sensor) {
	for _, s := range sensors {
		p.add(&entry{
			component: componentSensor,
			entity:    s,
			icon:      s.Icon(),
			state:     s.State,
		})
	}
}

func (p *Publisher) AddSwitches(switches ...*entities.Switch) {
	for _, s := range switches {
		e := &entry{
			component: componentSwitch,
			entity:    s,
			command:   true,
			state:     func() string { return onOff(s.IsOn()) },
		}
		p.add(e)
		p.switches[entityTopic(p.opts.Node, e.object, "set")] = s
	}
}

// Start subscribes to the switch command topics and announces everything.
// ctx is used for the commands sent to the panel.
func (p *Publisher) Start(ctx context.Context) error {
	p.ctx = ctx
	for topic := range p.switches {
		if err := p.transport.Subscribe(topic, p.handleCommand); err != nil {
			return fmt.Errorf("could not subscribe to %s: %w", topic, err)
		}
	}
	return p.Announce()
}

// Announce publishes every discovery config followed by the current state,
// ignoring what was published before. It should be called after every
// reconnection to the broker.
func (p *Publisher) Announce() error {
	p.lastMu.Lock()
	p.last = map[string]string{}
	p.lastMu.Unlock()

	for _, e := range p.entries {
		payload, err := json.Marshal(p.config(e))
		if err != nil {
			return fmt.Errorf("could not encode discovery config: %w", err)
		}
		if err := p.publish(configTopic(p.opts.DiscoveryPrefix, e.component, p.opts.Node, e.object), payload); err != nil {
			return err
		}
	}
	log.Info("announced entities", "count", len(p.entries))

	if err := p.publishPanel(); err != nil {
		return err
	}
	for _, e := range p.entries {
		if err := p.publishState(e); err != nil {
			return err
		}
	}
	return nil
}

// Handle publishes the entities interested in the given update.
func (p *Publisher) Handle(u envisalink.Update) {
	if u.Kind == envisalink.UpdateConnection {
		if err := p.publishPanel(); err != nil {
			log.Warn("could not publish panel availability", "err", err)
		}
		return
	}
	for _, e := range p.bySignal[u] {
		if err := p.publishState(e); err != nil {
			log.Warn("could not publish state", "entity", e.entity.UniqueID(), "err", err)
		}
	}
}

func (p *Publisher) config(e *entry) Config {
	var name *string
	if n := e.entity.Name(); n != "" {
		name = &n
	}
	cfg := Config{
		Name:        name,
		UniqueID:    e.entity.UniqueID(),
		ObjectID:    e.object,
		DeviceClass: e.deviceClass,
		Icon:        e.icon,
		StateTopic:  entityTopic(p.opts.Node, e.object, "state"),
		Availability: []Availability{
			{Topic: StatusTopic(p.opts.Node)},
			{Topic: PanelTopic(p.opts.Node)},
		},
		AvailabilityMode: "all",
		Device:           newDevice(e.entity.Device()),
		Origin: Origin{
			Name:       "homekit-envisalink",
			SWVersion:  p.opts.Version,
			SupportURL: "https://github.com/caarlos0/homekit-envisalink",
		},
	}
	if e.entity.Attributes() != nil {
		cfg.JSONAttributesTopic = entityTopic(p.opts.Node, e.object, "attributes")
	}
	if e.command {
		cfg.CommandTopic = entityTopic(p.opts.Node, e.object, "set")
		cfg.PayloadOn = PayloadOn
		cfg.PayloadOff = PayloadOff
	}
	return cfg
}

func (p *Publisher) publishPanel() error {
	payload := PayloadOffline
	if p.panel.Connected() {
		payload = PayloadOnline
	}
	return p.publish(PanelTopic(p.opts.Node), []byte(payload))
}

func (p *Publisher) publishState(e *entry) error {
	if err := p.publish(entityTopic(p.opts.Node, e.object, "state"), []byte(e.state())); err != nil {
		return err
	}
	attrs := e.entity.Attributes()
	if attrs == nil {
		return nil
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("could not encode attributes: %w", err)
	}
	return p.publish(entityTopic(p.opts.Node, e.object, "attributes"), payload)
}

// publish sends a retained message unless the topic already holds the same
// payload.
func (p *Publisher) publish(topic string, payload []byte) error {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	if last, ok := p.last[topic]; ok && last == string(payload) {
		return nil
	}
	if err := p.transport.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("could not publish to %s: %w", topic, err)
	}
	log.Debug("published", "topic", topic, "payload", string(payload))
	p.last[topic] = string(payload)
	return nil
}

func (p *Publisher) handleCommand(topic string, payload []byte) error {
	sw, ok := p.switches[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	var want bool
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case PayloadOn:
		want = true
	case PayloadOff:
		want = false
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}

	// the panel only knows how to toggle
	if sw.IsOn() == want {
		log.Debug("zone bypass already in the requested state", "zone", sw.Zone(), "bypassed", want)
		return nil
	}
	log.Info("toggling zone bypass", "zone", sw.Zone(), "bypassed", want)
	if want {
		return sw.TurnOn(p.ctx)
	}
	return sw.TurnOff(p.ctx)
}

func onOff(on bool) string {
	if on {
		return PayloadOn
	}
	return PayloadOff
}
