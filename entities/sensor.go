package entities

import (
	"fmt"

	envisalink "github.com/caarlos0/homekit-envisalink"
)

const keypadIcon = "mdi:alarm"

// Sensor exposes the keypad status text of a partition.
type Sensor struct {
	base
	partition     int
	partitionName string
}

func NewSensor(ctrl Controller, uid string, partition int, info PartitionInfo) *Sensor {
	log.Debug("setting up alarm keypad", "partition", partition)
	return &Sensor{
		base: base{
			ctrl:     ctrl,
			uid:      uid,
			uniqueID: fmt.Sprintf("%s_Partition %d Keypad", uid, partition),
			name:     "Keypad",
			signal:   envisalink.Update{Kind: envisalink.UpdatePartition, Number: partition},
		},
		partition:     partition,
		partitionName: info.Name,
	}
}

func (s *Sensor) info() envisalink.PartitionStatus {
	part, _ := s.ctrl.Partition(s.partition)
	return part.Status
}

func (s *Sensor) Partition() int {
	return s.partition
}

func (s *Sensor) Device() DeviceInfo {
	return partitionDevice(s.uid, s.ctrl.Info(), s.partition, s.partitionName)
}

func (s *Sensor) Icon() string {
	return keypadIcon
}

func (s *Sensor) State() string {
	return s.info().Alpha
}

// Status returns the full partition status.
func (s *Sensor) Status() envisalink.PartitionStatus {
	return s.info()
}

func (s *Sensor) Attributes() map[string]any {
	return s.info().Attributes()
}
