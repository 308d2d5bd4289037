package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
	"github.com/caarlos0/homekit-envisalink/hass"
	"github.com/caarlos0/homekit-envisalink/history"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Host             string        `env:"HOST,notEmpty"`
	Port             string        `env:"PORT"               envDefault:"4025"`
	WebPort          string        `env:"EVL_WEB_PORT"       envDefault:"80"`
	User             string        `env:"EVL_USER"           envDefault:"user"`
	Password         string        `env:"PASSWORD,notEmpty"`
	EVLVersion       int           `env:"EVL_VERSION"        envDefault:"4"`
	PanelType        string        `env:"PANEL_TYPE"         envDefault:"DSC"`
	MaxZones         int           `env:"MAX_ZONES"          envDefault:"64"`
	MaxPartitions    int           `env:"MAX_PARTITIONS"     envDefault:"8"`
	Keepalive        time.Duration `env:"KEEPALIVE"          envDefault:"60s"`
	ZoneDumpInterval time.Duration `env:"ZONE_DUMP_INTERVAL" envDefault:"30s"`
	Timeout          time.Duration `env:"TIMEOUT"            envDefault:"10s"`
	UniqueID         string        `env:"UNIQUE_ID"`
	Zones            string        `env:"ZONES"`
	Partitions       string        `env:"PARTITIONS"         envDefault:"1"`
	BypassSwitches   bool          `env:"BYPASS_SWITCHES"`
	ZonesFile        string        `env:"ZONES_FILE"`
	Address          string        `env:"LISTEN"             envDefault:":9009"`
	DB               string        `env:"DB"                 envDefault:"./db"`
	Debug            bool          `env:"DEBUG"`
	MQTT             MQTTConfig    `envPrefix:"MQTT_"`
	Influx           InfluxConfig  `envPrefix:"INFLUX_"`
}

type MQTTConfig struct {
	Host            string `env:"HOST"`
	Port            int    `env:"PORT"             envDefault:"1883"`
	TLS             bool   `env:"TLS"`
	Username        string `env:"USERNAME"`
	Password        string `env:"PASSWORD"`
	ClientID        string `env:"CLIENT_ID"        envDefault:"homekit-envisalink"`
	QoS             byte   `env:"QOS"              envDefault:"1"`
	DiscoveryPrefix string `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
}

type InfluxConfig struct {
	URL           string        `env:"URL"`
	Token         string        `env:"TOKEN"`
	Org           string        `env:"ORG"`
	Bucket        string        `env:"BUCKET"         envDefault:"envisalink"`
	BatchSize     uint          `env:"BATCH_SIZE"     envDefault:"100"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"10s"`
}

func (c Config) validate() error {
	if !strings.EqualFold(c.PanelType, envisalink.PanelTypeDSC) {
		return fmt.Errorf("unsupported panel type %q, only %s panels are supported", c.PanelType, envisalink.PanelTypeDSC)
	}
	opts := c.clientOptions().WithDefaults()
	if _, err := entities.ParseRangeString(c.Zones, 1, opts.MaxZones); err != nil {
		return fmt.Errorf("invalid ZONES: %w", err)
	}
	if _, err := entities.ParseRangeString(c.Partitions, 1, opts.MaxPartitions); err != nil {
		return fmt.Errorf("invalid PARTITIONS: %w", err)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT_QOS: %d", c.MQTT.QoS)
	}
	return nil
}

func (c Config) clientOptions() envisalink.Options {
	return envisalink.Options{
		Host:             c.Host,
		Port:             c.Port,
		WebPort:          c.WebPort,
		User:             c.User,
		Password:         c.Password,
		EVLVersion:       c.EVLVersion,
		MaxZones:         c.MaxZones,
		MaxPartitions:    c.MaxPartitions,
		Timeout:          c.Timeout,
		Keepalive:        c.Keepalive,
		ZoneDumpInterval: c.ZoneDumpInterval,
	}
}

func (c Config) entityOptions(uid string) entities.Options {
	return entities.Options{
		UniqueID:                 uid,
		ZoneSet:                  c.Zones,
		PartitionSet:             c.Partitions,
		CreateZoneBypassSwitches: c.BypassSwitches,
	}
}

func (c Config) mqttOptions(node string) hass.MQTTOptions {
	return hass.MQTTOptions{
		Host:        c.MQTT.Host,
		Port:        c.MQTT.Port,
		TLS:         c.MQTT.TLS,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		QoS:         c.MQTT.QoS,
		StatusTopic: hass.StatusTopic(node),
	}
}

func (c Config) influxOptions() history.Options {
	return history.Options{
		URL:           c.Influx.URL,
		Token:         c.Influx.Token,
		Org:           c.Influx.Org,
		Bucket:        c.Influx.Bucket,
		BatchSize:     c.Influx.BatchSize,
		FlushInterval: c.Influx.FlushInterval,
	}
}

// uniqueID defaults to the panel MAC address, falling back to its host.
func (c Config) uniqueID(mac string) string {
	if c.UniqueID != "" {
		return c.UniqueID
	}
	if mac != "" {
		return strings.ReplaceAll(mac, ":", "")
	}
	return c.Host
}

// loadData reads the zone and partition names and types. A missing
// ZONES_FILE means no overrides.
func (c Config) loadData() (entities.Data, error) {
	var data entities.Data
	if c.ZonesFile == "" {
		return data, nil
	}
	bts, err := os.ReadFile(c.ZonesFile)
	if err != nil {
		return data, fmt.Errorf("could not read zones file: %w", err)
	}
	if err := yaml.Unmarshal(bts, &data); err != nil {
		return data, fmt.Errorf("could not parse zones file: %w", err)
	}
	return data, nil
}

func describeZones(data entities.Data) string {
	keys := maps.Keys(data.Zones)
	slices.Sort(keys)
	var zones []string
	for _, n := range keys {
		zone := data.Zones[n]
		kind := zone.Type
		if kind == "" {
			kind = entities.DefaultZoneType
		}
		zones = append(zones, fmt.Sprintf("zone %d: %q (%s)", n, zone.Name, kind))
	}
	return strings.Join(zones, "\n")
}
