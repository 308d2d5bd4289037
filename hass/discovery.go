package hass

import (
	"fmt"
	"strings"

	"github.com/caarlos0/homekit-envisalink/entities"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadOn      = "ON"
	PayloadOff     = "OFF"

	DefaultDiscoveryPrefix = "homeassistant"
	topicRoot              = "envisalink"
)

const (
	componentBinarySensor = "binary_sensor"
	componentSensor       = "sensor"
	componentSwitch       = "switch"
)

// Config is the discovery payload of a single entity.
type Config struct {
	// Name is null for entities named after their device.
	Name                *string        `json:"name"`
	UniqueID            string         `json:"unique_id"`
	ObjectID            string         `json:"object_id"`
	DeviceClass         string         `json:"device_class,omitempty"`
	Icon                string         `json:"icon,omitempty"`
	StateTopic          string         `json:"state_topic"`
	JSONAttributesTopic string         `json:"json_attributes_topic,omitempty"`
	CommandTopic        string         `json:"command_topic,omitempty"`
	PayloadOn           string         `json:"payload_on,omitempty"`
	PayloadOff          string         `json:"payload_off,omitempty"`
	Availability        []Availability `json:"availability"`
	AvailabilityMode    string         `json:"availability_mode"`
	Device              Device         `json:"device"`
	Origin              Origin         `json:"origin"`
}

type Availability struct {
	Topic string `json:"topic"`
}

type Device struct {
	Identifiers      []string `json:"identifiers"`
	Name             string   `json:"name"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	SWVersion        string   `json:"sw_version,omitempty"`
	HWVersion        string   `json:"hw_version,omitempty"`
	ConfigurationURL string   `json:"configuration_url,omitempty"`
}

type Origin struct {
	Name       string `json:"name"`
	SWVersion  string `json:"sw_version,omitempty"`
	SupportURL string `json:"support_url,omitempty"`
}

func newDevice(info entities.DeviceInfo) Device {
	return Device{
		Identifiers:      info.Identifiers,
		Name:             info.Name,
		Manufacturer:     info.Manufacturer,
		Model:            info.Model,
		SWVersion:        info.SWVersion,
		HWVersion:        info.HWVersion,
		ConfigurationURL: info.ConfigurationURL,
	}
}

// ObjectID turns a unique id into something usable as a topic level and
// entity id: lowercase letters, digits and underscores.
func ObjectID(s string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			underscore = false
		case !underscore:
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.Trim(sb.String(), "_")
}

// StatusTopic is where the bridge reports whether it is online.
func StatusTopic(node string) string {
	return fmt.Sprintf("%s/%s/status", topicRoot, node)
}

// PanelTopic is where the bridge reports whether the panel is reachable.
func PanelTopic(node string) string {
	return fmt.Sprintf("%s/%s/panel", topicRoot, node)
}

func configTopic(prefix, component, node, object string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, node, object)
}

func entityTopic(node, object, kind string) string {
	return fmt.Sprintf("%s/%s/%s/%s", topicRoot, node, object, kind)
}
