package main

import (
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	envisalink "github.com/caarlos0/homekit-envisalink"
	"github.com/caarlos0/homekit-envisalink/entities"
)

//go:embed index.html
var index string

var indexTpl = template.Must(template.New("index").Parse(index))

type Page struct {
	Panel      string
	Firmware   string
	Connected  bool
	Partitions []PartitionItem
	Zones      []ZoneItem
}

type PartitionItem struct {
	Number  int
	Name    string
	Alpha   string
	Armed   bool
	Alarm   bool
	Trouble bool
}

type ZoneItem struct {
	Number      int
	Name        string
	Type        string
	Open        bool
	Tamper      bool
	Fault       bool
	Bypassed    bool
	LastTripped string
}

type pageSource interface {
	Info() envisalink.Info
	Connected() bool
	Zone(n int) (envisalink.Zone, bool)
}

func buildPage(src pageSource, sensors []*entities.BinarySensor, keypads []*entities.Sensor) Page {
	info := src.Info()
	page := Page{
		Panel:     fmt.Sprintf("Envisalink %d (%s) at %s", info.EnvisalinkVersion, info.PanelType, info.Host),
		Firmware:  info.FirmwareVersion,
		Connected: src.Connected(),
	}
	for _, keypad := range keypads {
		status := keypad.Status()
		page.Partitions = append(page.Partitions, PartitionItem{
			Number:  keypad.Partition(),
			Name:    keypad.Device().Name,
			Alpha:   status.Alpha,
			Armed:   status.Armed(),
			Alarm:   status.Alarm,
			Trouble: status.Trouble,
		})
	}
	for _, sensor := range sensors {
		zone, _ := src.Zone(sensor.Zone())
		lastTripped := "unknown"
		if v, ok := sensor.Attributes()[entities.AttrLastTripTime].(string); ok {
			lastTripped = v
		}
		page.Zones = append(page.Zones, ZoneItem{
			Number:      sensor.Zone(),
			Name:        sensor.Device().Name,
			Type:        sensor.DeviceClass(),
			Open:        zone.Status.Open,
			Tamper:      zone.Status.Tamper,
			Fault:       zone.Status.Fault,
			Bypassed:    zone.Bypassed,
			LastTripped: lastTripped,
		})
	}
	return page
}

func pageHandler(src pageSource, sensors []*entities.BinarySensor, keypads []*entities.Sensor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTpl.Execute(w, buildPage(src, sensors, keypads)); err != nil {
			log.Error("could not render page", "err", err)
		}
	})
}
