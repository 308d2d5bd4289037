package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/caarlos0/homekit-envisalink/entities"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("HOST", "192.168.1.20")
	t.Setenv("PASSWORD", "secret")
	t.Setenv("ZONES", "1-4,8")
	t.Setenv("MQTT_HOST", "broker.local")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("INFLUX_URL", "http://influx:8086")

	var cfg Config
	require.NoError(t, env.Parse(&cfg))
	require.NoError(t, cfg.validate())

	require.Equal(t, "4025", cfg.Port)
	require.Equal(t, "user", cfg.User)
	require.Equal(t, "1", cfg.Partitions)
	require.Equal(t, 4, cfg.EVLVersion)
	require.Equal(t, 30*time.Second, cfg.ZoneDumpInterval)
	require.Equal(t, "broker.local", cfg.MQTT.Host)
	require.Equal(t, 1883, cfg.MQTT.Port)
	require.Equal(t, byte(0), cfg.MQTT.QoS)
	require.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	require.Equal(t, "envisalink", cfg.Influx.Bucket)

	opts := cfg.clientOptions()
	require.Equal(t, "192.168.1.20", opts.Host)
	require.Equal(t, 64, opts.MaxZones)

	mqtt := cfg.mqttOptions("evl")
	require.Equal(t, "envisalink/evl/status", mqtt.StatusTopic)
	require.Equal(t, "http://influx:8086", cfg.influxOptions().URL)
}

func TestParseConfigRequired(t *testing.T) {
	t.Setenv("HOST", "")
	t.Setenv("PASSWORD", "")
	var cfg Config
	require.Error(t, env.Parse(&cfg))
}

func TestValidate(t *testing.T) {
	valid := Config{
		PanelType:     "dsc",
		Zones:         "1-8",
		Partitions:    "1",
		MaxZones:      64,
		MaxPartitions: 8,
	}
	require.NoError(t, valid.validate())

	t.Run("zone limits follow the client", func(t *testing.T) {
		cfg := valid
		cfg.MaxZones = 0
		cfg.Zones = "1-64"
		require.NoError(t, cfg.validate())

		cfg.MaxZones = 100
		cfg.Zones = "1-100"
		require.Error(t, cfg.validate())

		cfg.MaxZones = 16
		cfg.Zones = "17"
		require.Error(t, cfg.validate())
	})

	for name, fn := range map[string]func(c *Config){
		"honeywell":       func(c *Config) { c.PanelType = "HONEYWELL" },
		"zones":           func(c *Config) { c.Zones = "1-65" },
		"partitions":      func(c *Config) { c.Partitions = "0" },
		"garbage zones":   func(c *Config) { c.Zones = "a,b" },
		"qos":             func(c *Config) { c.MQTT.QoS = 3 },
		"reversed ranges": func(c *Config) { c.Zones = "8-1" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			fn(&cfg)
			require.Error(t, cfg.validate())
		})
	}
}

func TestUniqueID(t *testing.T) {
	cfg := Config{Host: "192.168.1.20"}
	require.Equal(t, "192.168.1.20", cfg.uniqueID(""))
	require.Equal(t, "001cc0ffee00", cfg.uniqueID("00:1c:c0:ff:ee:00"))
	cfg.UniqueID = "house"
	require.Equal(t, "house", cfg.uniqueID("00:1c:c0:ff:ee:00"))
}

func TestLoadData(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		data, err := Config{}.loadData()
		require.NoError(t, err)
		require.Empty(t, data.Zones)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zones.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
zones:
  1:
    name: Front Door
    type: door
  5:
    name: Living Room
    type: motion
partitions:
  1:
    name: House
`), 0o644))

		data, err := Config{ZonesFile: path}.loadData()
		require.NoError(t, err)
		require.Equal(t, entities.Data{
			Zones: map[int]entities.ZoneInfo{
				1: {Name: "Front Door", Type: "door"},
				5: {Name: "Living Room", Type: "motion"},
			},
			Partitions: map[int]entities.PartitionInfo{
				1: {Name: "House"},
			},
		}, data)

		require.Equal(t, "zone 1: \"Front Door\" (door)\nzone 5: \"Living Room\" (motion)", describeZones(data))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Config{ZonesFile: "/nope/zones.yaml"}.loadData()
		require.Error(t, err)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "zones.yaml")
		require.NoError(t, os.WriteFile(path, []byte("zones: [1, 2"), 0o644))
		_, err := Config{ZonesFile: path}.loadData()
		require.Error(t, err)
	})
}
