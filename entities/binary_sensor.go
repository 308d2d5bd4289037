package entities

import (
	"fmt"
	"time"

	envisalink "github.com/caarlos0/homekit-envisalink"
)

const (
	AttrLastTripTime = "last_tripped_time"
	AttrZone         = "zone"
)

// BinarySensor exposes whether a zone is open.
type BinarySensor struct {
	base
	zone     int
	zoneType string
	zoneName string
	now      func() time.Time
}

func NewBinarySensor(ctrl Controller, uid string, zone int, info ZoneInfo) *BinarySensor {
	log.Debug("setting up zone", "zone", zone)
	s := &BinarySensor{
		base: base{
			ctrl:     ctrl,
			uid:      uid,
			uniqueID: fmt.Sprintf("%s_Zone %d", uid, zone),
			signal:   envisalink.Update{Kind: envisalink.UpdateZone, Number: zone},
		},
		zone:     zone,
		zoneType: DefaultZoneType,
		zoneName: info.Name,
		now:      time.Now,
	}
	if info.Type != "" {
		s.zoneType = info.Type
	}
	return s
}

func (s *BinarySensor) info() envisalink.Zone {
	zone, _ := s.ctrl.Zone(s.zone)
	return zone
}

func (s *BinarySensor) Zone() int {
	return s.zone
}

func (s *BinarySensor) Device() DeviceInfo {
	return zoneDevice(s.uid, s.ctrl.Info(), s.zone, s.zoneName)
}

func (s *BinarySensor) IsOn() bool {
	return s.info().Status.Open
}

// Status returns the full zone status.
func (s *BinarySensor) Status() envisalink.ZoneStatus {
	return s.info().Status
}

func (s *BinarySensor) DeviceClass() string {
	return s.zoneType
}

// Attributes reports when the zone last tripped and its number.
//
// The panel reports the seconds since the last fault, which would change on
// every poll, so it is turned into an absolute time instead. Once the counter
// reaches its maximum the real value is unknown and nil is reported.
func (s *BinarySensor) Attributes() map[string]any {
	var lastTrip any
	if seconds := s.info().LastFault; seconds < envisalink.MaxLastFault {
		now := s.now().Truncate(time.Second)
		lastTrip = now.Add(-time.Duration(seconds) * time.Second).Format(time.RFC3339)
	}
	return map[string]any{
		AttrLastTripTime: lastTrip,
		AttrZone:         s.zone,
	}
}
