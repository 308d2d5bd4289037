package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/caarlos0/env/v11"
	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
	"github.com/caarlos0/homekit-envisalink/hass"
	"github.com/caarlos0/homekit-envisalink/history"
	"github.com/cenkalti/backoff/v4"
	logp "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "homekit",
})

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	log.Info(
		"homekit-envisalink",
		"version", version,
		"commit", commit,
		"date", date,
		"info", strings.Join([]string{
			"Homekit and Home Assistant bridge for EnvisaLink alarm boards",
			"© Carlos Alexandro Becker",
			"https://becker.software",
		}, "\n"),
	)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(
			"could not parse env",
			"err",
			strings.TrimPrefix(strings.ReplaceAll(err.Error(), "; ", "\n"), "env: ")+"\n",
		)
	}
	if cfg.Debug {
		for _, setLevel := range []func(logp.Level){
			log.SetLevel,
			envisalink.SetLogLevel,
			entities.SetLogLevel,
			hass.SetLogLevel,
			history.SetLogLevel,
		} {
			setLevel(logp.DebugLevel)
		}
	}
	if err := cfg.validate(); err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	data, err := cfg.loadData()
	if err != nil {
		log.Fatal("could not load zones", "err", err)
	}
	log.Info(
		"loading accessories",
		"zones", cfg.Zones,
		"partitions", cfg.Partitions,
		"bypass", cfg.BypassSwitches,
		"names", describeZones(data),
	)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c
		log.Info("stopping server")
		signal.Stop(c)
		cancel()
	}()

	cli := envisalink.New(cfg.clientOptions())

	macAddr, err := envisalink.MacAddress(cfg.Host)
	if err != nil {
		log.Warn(
			"could not get the mac address, needs 'cap_net_raw+ep' capabilities",
			"err", err,
		)
	}
	if _, err := cli.FetchFirmware(ctx); err != nil {
		log.Warn("could not get firmware version", "err", err)
	}
	info := cli.Info()
	uid := cfg.uniqueID(macAddr)
	log.Info(
		"got alarm system information",
		"manufacturer", envisalink.Manufacturer,
		"panel", info.PanelType,
		"evl", info.EnvisalinkVersion,
		"firmware", info.FirmwareVersion,
		"mac", macAddr,
		"uid", uid,
	)

	opts := cfg.entityOptions(uid)
	sensors, err := entities.SetupBinarySensors(cli, opts, data)
	if err != nil {
		log.Fatal("could not setup zones", "err", err)
	}
	keypads, err := entities.SetupSensors(cli, opts, data)
	if err != nil {
		log.Fatal("could not setup partitions", "err", err)
	}
	switches, err := entities.SetupSwitches(cli, opts, data)
	if err != nil {
		log.Fatal("could not setup bypass switches", "err", err)
	}

	execute := newExecutor()
	zoneSensors, alarms := setupAccessories(sensors, keypads, switches, execute)

	var handlers []func(envisalink.Update)
	handlers = append(handlers, homekitHandler(cli.Connected, zoneSensors, alarms))

	if cfg.MQTT.Host != "" {
		mqtt, err := hass.Connect(cfg.mqttOptions(hass.ObjectID(uid)))
		if err != nil {
			log.Fatal("could not connect to mqtt broker", "err", err)
		}
		defer func() { _ = mqtt.Close() }()

		pub := hass.NewPublisher(mqtt, cli, hass.PublisherOptions{
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			Node:            uid,
			Version:         version,
		})
		pub.AddBinarySensors(sensors...)
		pub.AddSensors(keypads...)
		pub.AddSwitches(switches...)
		if err := pub.Start(ctx); err != nil {
			log.Fatal("could not announce entities", "err", err)
		}
		mqtt.SetOnConnect(func() {
			if err := pub.Announce(); err != nil {
				log.Error("could not announce entities", "err", err)
			}
		})
		handlers = append(handlers, pub.Handle)
	}

	if cfg.Influx.URL != "" {
		rec, err := history.Connect(ctx, cfg.influxOptions(), cli, data)
		if err != nil {
			log.Fatal("could not connect to influxdb", "err", err)
		}
		defer rec.Close()
		handlers = append(handlers, rec.Handle)
	}

	cli.OnUpdate(func(u envisalink.Update) {
		log.Debug("update", "update", u.String())
		for _, handle := range handlers {
			handle(u)
		}
	})

	go func() {
		if err := cli.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal("envisalink client stopped", "err", err)
		}
	}()

	bridge := accessory.NewBridge(accessory.Info{
		Name:         "Envisalink Bridge",
		Manufacturer: envisalink.Manufacturer,
		Model:        fmt.Sprintf("Envisalink %d", info.EnvisalinkVersion),
		SerialNumber: macAddr,
		Firmware:     version,
	})

	fs := hap.NewFsStore(cfg.DB)
	server, err := hap.NewServer(fs, bridge.A, securityAccessories(zoneSensors, alarms)...)
	if err != nil {
		log.Fatal("fail to create server", "error", err)
	}
	server.Addr = cfg.Address
	server.ServeMux().Handle("/metrics", promhttp.Handler())
	server.ServeMux().Handle("/", pageHandler(cli, sensors, keypads))

	log.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to close server", "err", err)
	}
}

// newExecutor serializes commands to the panel, retrying while it is
// unreachable.
func newExecutor() Executor {
	var lock sync.Mutex
	return func(fn func(ctx context.Context) error) error {
		t := time.Now()
		lock.Lock()
		defer lock.Unlock()
		log.Debugf("got client lock after %s", time.Since(t))

		bo := backoff.NewExponentialBackOff()
		bo.MaxInterval = time.Second * 5
		bo.MaxElapsedTime = time.Minute

		return backoff.RetryNotify(func() error {
			requestCounter.Inc()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := fn(ctx); err != nil {
				requestErrorCounter.Inc()
				if errors.Is(err, envisalink.ErrInvalidZone) {
					return backoff.Permanent(err)
				}
				return err
			}
			return nil
		}, bo, func(err error, _ time.Duration) {
			log.Error("command to panel failed", "err", err)
		})
	}
}

func setupAccessories(
	sensors []*entities.BinarySensor,
	keypads []*entities.Sensor,
	switches []*entities.Switch,
	execute Executor,
) (map[int]*ZoneSensor, map[int]*SecuritySystem) {
	bypasses := map[int]*entities.Switch{}
	for _, sw := range switches {
		bypasses[sw.Zone()] = sw
	}
	zones := map[int]*ZoneSensor{}
	for _, sensor := range sensors {
		zones[sensor.Zone()] = newZoneSensor(sensor, bypasses[sensor.Zone()], execute)
	}
	alarms := map[int]*SecuritySystem{}
	for _, keypad := range keypads {
		alarms[keypad.Partition()] = newSecuritySystem(keypad)
	}
	return zones, alarms
}

func homekitHandler(
	connected func() bool,
	zones map[int]*ZoneSensor,
	alarms map[int]*SecuritySystem,
) func(envisalink.Update) {
	return func(u envisalink.Update) {
		switch u.Kind {
		case envisalink.UpdateZone:
			if a, ok := zones[u.Number]; ok {
				a.Update()
			}
		case envisalink.UpdateZoneBypass:
			if a, ok := zones[u.Number]; ok {
				a.UpdateBypass()
			}
		case envisalink.UpdatePartition:
			if a, ok := alarms[u.Number]; ok {
				a.Update()
			}
		case envisalink.UpdateConnection:
			connectedGauge.Set(boolAs[float64](connected()))
		}
	}
}

func securityAccessories(zones map[int]*ZoneSensor, alarms map[int]*SecuritySystem) []*accessory.A {
	var result []*accessory.A
	for _, n := range sortedKeys(alarms) {
		result = append(result, alarms[n].A)
	}
	for _, n := range sortedKeys(zones) {
		result = append(result, zones[n].A)
	}
	return result
}

func sortedKeys[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
