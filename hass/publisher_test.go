package hass

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
	"github.com/stretchr/testify/require"
)

type fakePanel struct {
	mu         sync.Mutex
	connected  bool
	zones      map[int]envisalink.Zone
	partitions map[int]envisalink.Partition
	toggled    []int
}

func newFakePanel() *fakePanel {
	p := &fakePanel{
		connected:  true,
		zones:      map[int]envisalink.Zone{},
		partitions: map[int]envisalink.Partition{},
	}
	for i := 1; i <= 2; i++ {
		p.zones[i] = envisalink.Zone{Number: i, LastFault: envisalink.MaxLastFault}
	}
	p.partitions[1] = envisalink.Partition{
		Number: 1,
		Status: envisalink.PartitionStatus{Alpha: "Ready", Ready: true},
	}
	return p
}

func (p *fakePanel) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePanel) Info() envisalink.Info {
	return envisalink.Info{
		PanelType:         envisalink.PanelTypeDSC,
		EnvisalinkVersion: 4,
		FirmwareVersion:   "01.04.197",
		Host:              "10.0.0.5",
		MaxZones:          8,
		MaxPartitions:     1,
	}
}

func (p *fakePanel) Zone(n int) (envisalink.Zone, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	z, ok := p.zones[n]
	return z, ok
}

func (p *fakePanel) Partition(n int) (envisalink.Partition, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	part, ok := p.partitions[n]
	return part, ok
}

func (p *fakePanel) ToggleZoneBypass(_ context.Context, zone int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toggled = append(p.toggled, zone)
	return nil
}

type message struct {
	topic    string
	payload  string
	retained bool
}

type fakeTransport struct {
	mu            sync.Mutex
	messages      []message
	subscriptions map[string]MessageHandler
	err           error
}

func (t *fakeTransport) Publish(topic string, payload []byte, retained bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.messages = append(t.messages, message{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (t *fakeTransport) Subscribe(topic string, handler MessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subscriptions == nil {
		t.subscriptions = map[string]MessageHandler{}
	}
	t.subscriptions[topic] = handler
	return nil
}

func (t *fakeTransport) last(topic string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].topic == topic {
			return t.messages[i].payload, true
		}
	}
	return "", false
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func setup(t *testing.T) (*Publisher, *fakeTransport, *fakePanel) {
	t.Helper()
	panel := newFakePanel()
	transport := &fakeTransport{}
	opts := entities.Options{
		UniqueID:                 "EVL",
		ZoneSet:                  "1-2",
		PartitionSet:             "1",
		CreateZoneBypassSwitches: true,
	}
	data := entities.Data{
		Zones: map[int]entities.ZoneInfo{
			2: {Name: "Hallway", Type: "motion"},
		},
	}

	binarySensors, err := entities.SetupBinarySensors(panel, opts, data)
	require.NoError(t, err)
	sensors, err := entities.SetupSensors(panel, opts, data)
	require.NoError(t, err)
	switches, err := entities.SetupSwitches(panel, opts, data)
	require.NoError(t, err)

	pub := NewPublisher(transport, panel, PublisherOptions{Node: "EVL", Version: "v1.0.0"})
	pub.AddBinarySensors(binarySensors...)
	pub.AddSensors(sensors...)
	pub.AddSwitches(switches...)
	require.NoError(t, pub.Start(context.Background()))
	return pub, transport, panel
}

func TestObjectID(t *testing.T) {
	for in, out := range map[string]string{
		"evl_Zone 3 Bypass": "evl_zone_3_bypass",
		"EVL-1":             "evl_1",
		"__a  b__":          "a_b",
		"":                  "",
	} {
		t.Run(in, func(t *testing.T) {
			require.Equal(t, out, ObjectID(in))
		})
	}
}

func TestTopics(t *testing.T) {
	require.Equal(t, "envisalink/evl/status", StatusTopic("evl"))
	require.Equal(t, "envisalink/evl/panel", PanelTopic("evl"))
	require.Equal(t, "homeassistant/switch/evl/evl_zone_1_bypass/config", configTopic("homeassistant", componentSwitch, "evl", "evl_zone_1_bypass"))
}

func TestAnnounce(t *testing.T) {
	_, transport, _ := setup(t)

	require.Len(t, transport.subscriptions, 2)
	require.Contains(t, transport.subscriptions, "envisalink/evl/evl_zone_1_bypass/set")
	for _, msg := range transport.messages {
		require.True(t, msg.retained, msg.topic)
	}

	t.Run("binary sensor", func(t *testing.T) {
		payload, ok := transport.last("homeassistant/binary_sensor/evl/evl_zone_1/config")
		require.True(t, ok)

		var raw map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &raw))
		require.Contains(t, raw, "name")
		require.Nil(t, raw["name"])

		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(payload), &cfg))
		require.Equal(t, "EVL_Zone 1", cfg.UniqueID)
		require.Equal(t, "evl_zone_1", cfg.ObjectID)
		require.Equal(t, entities.DefaultZoneType, cfg.DeviceClass)
		require.Equal(t, "envisalink/evl/evl_zone_1/state", cfg.StateTopic)
		require.Equal(t, "envisalink/evl/evl_zone_1/attributes", cfg.JSONAttributesTopic)
		require.Empty(t, cfg.CommandTopic)
		require.Equal(t, []Availability{
			{Topic: "envisalink/evl/status"},
			{Topic: "envisalink/evl/panel"},
		}, cfg.Availability)
		require.Equal(t, "all", cfg.AvailabilityMode)
		require.Equal(t, Device{
			Identifiers:      []string{"EVL_Zone 1"},
			Name:             "DSC Zone 1",
			Manufacturer:     "eyezon",
			Model:            "Envisalink 4: DSC Zone",
			SWVersion:        "01.04.197",
			HWVersion:        "4",
			ConfigurationURL: "http://10.0.0.5",
		}, cfg.Device)
		require.Equal(t, "v1.0.0", cfg.Origin.SWVersion)

		state, _ := transport.last("envisalink/evl/evl_zone_1/state")
		require.Equal(t, PayloadOff, state)
		attrs, _ := transport.last("envisalink/evl/evl_zone_1/attributes")
		require.JSONEq(t, `{"last_tripped_time":null,"zone":1}`, attrs)
	})

	t.Run("overridden zone", func(t *testing.T) {
		payload, _ := transport.last("homeassistant/binary_sensor/evl/evl_zone_2/config")
		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(payload), &cfg))
		require.Equal(t, "motion", cfg.DeviceClass)
		require.Equal(t, "Hallway", cfg.Device.Name)
	})

	t.Run("keypad", func(t *testing.T) {
		payload, ok := transport.last("homeassistant/sensor/evl/evl_partition_1_keypad/config")
		require.True(t, ok)
		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(payload), &cfg))
		require.NotNil(t, cfg.Name)
		require.Equal(t, "Keypad", *cfg.Name)
		require.Equal(t, "mdi:alarm", cfg.Icon)

		state, _ := transport.last("envisalink/evl/evl_partition_1_keypad/state")
		require.Equal(t, "Ready", state)
		attrs, _ := transport.last("envisalink/evl/evl_partition_1_keypad/attributes")
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(attrs), &decoded))
		require.Equal(t, true, decoded["ready"])
	})

	t.Run("switch", func(t *testing.T) {
		payload, ok := transport.last("homeassistant/switch/evl/evl_zone_2_bypass/config")
		require.True(t, ok)
		var cfg Config
		require.NoError(t, json.Unmarshal([]byte(payload), &cfg))
		require.Equal(t, "envisalink/evl/evl_zone_2_bypass/set", cfg.CommandTopic)
		require.Equal(t, PayloadOn, cfg.PayloadOn)
		require.Empty(t, cfg.JSONAttributesTopic)

		_, ok = transport.last("envisalink/evl/evl_zone_2_bypass/attributes")
		require.False(t, ok)
	})

	t.Run("panel", func(t *testing.T) {
		payload, _ := transport.last("envisalink/evl/panel")
		require.Equal(t, PayloadOnline, payload)
	})
}

func TestHandle(t *testing.T) {
	pub, transport, panel := setup(t)
	before := transport.count()

	pub.Handle(envisalink.Update{Kind: envisalink.UpdateZone, Number: 1})
	require.Equal(t, before, transport.count(), "nothing changed")

	panel.mu.Lock()
	panel.zones[1] = envisalink.Zone{Number: 1, Status: envisalink.ZoneStatus{Open: true}, LastFault: envisalink.MaxLastFault}
	panel.mu.Unlock()
	pub.Handle(envisalink.Update{Kind: envisalink.UpdateZone, Number: 1})
	require.Equal(t, before+1, transport.count())
	state, _ := transport.last("envisalink/evl/evl_zone_1/state")
	require.Equal(t, PayloadOn, state)

	panel.mu.Lock()
	panel.zones[2] = envisalink.Zone{Number: 2, Bypassed: true, LastFault: envisalink.MaxLastFault}
	panel.mu.Unlock()
	pub.Handle(envisalink.Update{Kind: envisalink.UpdateZoneBypass, Number: 2})
	state, _ = transport.last("envisalink/evl/evl_zone_2_bypass/state")
	require.Equal(t, PayloadOn, state)
	state, _ = transport.last("envisalink/evl/evl_zone_2/state")
	require.Equal(t, PayloadOff, state)

	panel.mu.Lock()
	panel.connected = false
	panel.mu.Unlock()
	pub.Handle(envisalink.Update{Kind: envisalink.UpdateConnection})
	payload, _ := transport.last("envisalink/evl/panel")
	require.Equal(t, PayloadOffline, payload)

	t.Run("announce republishes everything", func(t *testing.T) {
		count := transport.count()
		require.NoError(t, pub.Announce())
		// 5 configs, the panel, 5 states and 3 attributes
		require.Equal(t, count+14, transport.count())
	})
}

func TestPublishError(t *testing.T) {
	pub, transport, _ := setup(t)
	transport.err = errors.New("broker is gone")
	require.ErrorContains(t, pub.Announce(), "broker is gone")

	transport.err = nil
	require.NoError(t, pub.Announce())
}

func TestCommands(t *testing.T) {
	_, transport, panel := setup(t)
	handler := transport.subscriptions["envisalink/evl/evl_zone_1_bypass/set"]
	require.NotNil(t, handler)
	topic := "envisalink/evl/evl_zone_1_bypass/set"

	require.NoError(t, handler(topic, []byte("OFF")))
	require.Empty(t, panel.toggled)

	require.NoError(t, handler(topic, []byte("ON")))
	require.Equal(t, []int{1}, panel.toggled)

	panel.mu.Lock()
	panel.zones[1] = envisalink.Zone{Number: 1, Bypassed: true, LastFault: envisalink.MaxLastFault}
	panel.mu.Unlock()

	require.NoError(t, handler(topic, []byte("on")))
	require.Equal(t, []int{1}, panel.toggled)

	require.NoError(t, handler(topic, []byte("OFF")))
	require.Equal(t, []int{1, 1}, panel.toggled)

	require.ErrorIs(t, handler(topic, []byte("maybe")), ErrInvalidPayload)
	require.ErrorIs(t, handler("envisalink/evl/nope/set", []byte("ON")), ErrUnknownTopic)
}
