package entities

import (
	"context"
	"os"
	"time"

	envisalink "github.com/caarlos0/homekit-envisalink"
	logp "github.com/charmbracelet/log"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "entities",
})

// SetLogLevel sets the level of the package logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

// Controller is the live view of the alarm panel shared by all entities.
type Controller interface {
	Info() envisalink.Info
	Zone(n int) (envisalink.Zone, bool)
	Partition(n int) (envisalink.Partition, bool)
	ToggleZoneBypass(ctx context.Context, zone int) error
}

// Entity is what every exposed entity has in common.
type Entity interface {
	UniqueID() string
	// Name is empty when the entity takes the name of its device.
	Name() string
	Device() DeviceInfo
	// Signal is the controller update this entity reacts to.
	Signal() envisalink.Update
	Attributes() map[string]any
}

type base struct {
	ctrl     Controller
	uid      string
	uniqueID string
	name     string
	signal   envisalink.Update
}

func (b base) UniqueID() string {
	return b.uniqueID
}

func (b base) Name() string {
	return b.name
}

func (b base) Signal() envisalink.Update {
	return b.signal
}
