package entities

import (
	"context"
	"fmt"

	envisalink "github.com/caarlos0/homekit-envisalink"
)

// Switch exposes the bypass flag of a zone.
type Switch struct {
	base
	zone     int
	zoneName string
}

func NewSwitch(ctrl Controller, uid string, zone int, info ZoneInfo) *Switch {
	log.Debug("setting up zone bypass switch", "zone", zone)
	return &Switch{
		base: base{
			ctrl:     ctrl,
			uid:      uid,
			uniqueID: fmt.Sprintf("%s_Zone %d Bypass", uid, zone),
			name:     "Bypass",
			signal:   envisalink.Update{Kind: envisalink.UpdateZoneBypass, Number: zone},
		},
		zone:     zone,
		zoneName: info.Name,
	}
}

func (s *Switch) Zone() int {
	return s.zone
}

func (s *Switch) Device() DeviceInfo {
	return zoneDevice(s.uid, s.ctrl.Info(), s.zone, s.zoneName)
}

func (s *Switch) IsOn() bool {
	zone, _ := s.ctrl.Zone(s.zone)
	return zone.Bypassed
}

func (s *Switch) Attributes() map[string]any {
	return nil
}

// TurnOn sends the bypass keypress sequence, which toggles the zone bypass.
func (s *Switch) TurnOn(ctx context.Context) error {
	return s.ctrl.ToggleZoneBypass(ctx, s.zone)
}

// TurnOff sends the bypass keypress sequence, which toggles the zone bypass.
func (s *Switch) TurnOff(ctx context.Context) error {
	return s.ctrl.ToggleZoneBypass(ctx, s.zone)
}
