package envisalink

import "fmt"

const (
	PanelTypeDSC = "DSC"
	Manufacturer = "eyezon"

	// MaxLastFault is reported when the panel can no longer tell how long
	// ago a zone faulted (65536 ticks of 5 seconds).
	MaxLastFault = 65536 * 5
)

type Info struct {
	PanelType         string
	EnvisalinkVersion int
	FirmwareVersion   string
	Host              string
	MaxZones          int
	MaxPartitions     int
}

type AlarmState struct {
	Zones      map[int]Zone
	Partitions map[int]Partition
}

type ZoneStatus struct {
	Open   bool
	Fault  bool
	Alarm  bool
	Tamper bool
}

type Zone struct {
	Number    int
	Status    ZoneStatus
	Bypassed  bool
	LastFault int // seconds, MaxLastFault if unknown
}

type Partition struct {
	Number int
	Status PartitionStatus
}

type PartitionStatus struct {
	Alpha               string
	Ready               bool
	ArmedAway           bool
	ArmedStay           bool
	ArmedZeroEntryDelay bool
	ArmedBypass         bool
	ExitDelay           bool
	EntryDelay          bool
	Alarm               bool
	AlarmInMemory       bool
	Chime               bool
	Trouble             bool
	ACPresent           bool
	BatteryTrouble      bool
	Fire                bool
}

// Armed reports whether the partition is armed in any mode.
func (s PartitionStatus) Armed() bool {
	return s.ArmedAway || s.ArmedStay
}

func (s PartitionStatus) Attributes() map[string]any {
	return map[string]any{
		"alpha":                  s.Alpha,
		"ready":                  s.Ready,
		"armed_away":             s.ArmedAway,
		"armed_stay":             s.ArmedStay,
		"armed_zero_entry_delay": s.ArmedZeroEntryDelay,
		"armed_bypass":           s.ArmedBypass,
		"exit_delay":             s.ExitDelay,
		"entry_delay":            s.EntryDelay,
		"alarm":                  s.Alarm,
		"alarm_in_memory":        s.AlarmInMemory,
		"chime":                  s.Chime,
		"trouble":                s.Trouble,
		"ac_present":             s.ACPresent,
		"bat_trouble":            s.BatteryTrouble,
		"fire":                   s.Fire,
	}
}

func (s *PartitionStatus) clearArmed() {
	s.ArmedAway = false
	s.ArmedStay = false
	s.ArmedZeroEntryDelay = false
	s.ExitDelay = false
	s.EntryDelay = false
}

type UpdateKind uint8

const (
	UpdateZone UpdateKind = iota + 1
	UpdatePartition
	UpdateZoneBypass
	UpdateConnection
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateZone:
		return "zone"
	case UpdatePartition:
		return "partition"
	case UpdateZoneBypass:
		return "zone_bypass"
	case UpdateConnection:
		return "connection"
	default:
		return "unknown"
	}
}

type Update struct {
	Kind   UpdateKind
	Number int
}

func (u Update) String() string {
	return fmt.Sprintf("%s %d", u.Kind, u.Number)
}

func newAlarmState(zones, partitions int) AlarmState {
	state := AlarmState{
		Zones:      make(map[int]Zone, zones),
		Partitions: make(map[int]Partition, partitions),
	}
	for i := 1; i <= zones; i++ {
		state.Zones[i] = Zone{
			Number:    i,
			LastFault: MaxLastFault,
		}
	}
	for i := 1; i <= partitions; i++ {
		state.Partitions[i] = Partition{
			Number: i,
			Status: PartitionStatus{
				Alpha:     "Unknown",
				ACPresent: true,
			},
		}
	}
	return state
}

func (s AlarmState) clone() AlarmState {
	c := AlarmState{
		Zones:      make(map[int]Zone, len(s.Zones)),
		Partitions: make(map[int]Partition, len(s.Partitions)),
	}
	for k, v := range s.Zones {
		c.Zones[k] = v
	}
	for k, v := range s.Partitions {
		c.Partitions[k] = v
	}
	return c
}
