package entities

import "fmt"

// Options select which entities get created.
type Options struct {
	UniqueID                 string
	ZoneSet                  string
	PartitionSet             string
	CreateZoneBypassSwitches bool
}

func SetupBinarySensors(ctrl Controller, opts Options, data Data) ([]*BinarySensor, error) {
	zones, err := ParseRangeString(opts.ZoneSet, 1, ctrl.Info().MaxZones)
	if err != nil {
		return nil, fmt.Errorf("invalid zone set: %w", err)
	}
	var result []*BinarySensor
	for _, zone := range zones {
		info, _ := FindZoneInfo(zone, data.Zones)
		result = append(result, NewBinarySensor(ctrl, opts.UniqueID, zone, info))
	}
	return result, nil
}

func SetupSensors(ctrl Controller, opts Options, data Data) ([]*Sensor, error) {
	partitions, err := ParseRangeString(opts.PartitionSet, 1, ctrl.Info().MaxPartitions)
	if err != nil {
		return nil, fmt.Errorf("invalid partition set: %w", err)
	}
	var result []*Sensor
	for _, part := range partitions {
		info, _ := FindPartitionInfo(part, data.Partitions)
		result = append(result, NewSensor(ctrl, opts.UniqueID, part, info))
	}
	return result, nil
}

func SetupSwitches(ctrl Controller, opts Options, data Data) ([]*Switch, error) {
	if !opts.CreateZoneBypassSwitches {
		return nil, nil
	}
	zones, err := ParseRangeString(opts.ZoneSet, 1, ctrl.Info().MaxZones)
	if err != nil {
		return nil, fmt.Errorf("invalid zone set: %w", err)
	}
	var result []*Switch
	for _, zone := range zones {
		info, _ := FindZoneInfo(zone, data.Zones)
		result = append(result, NewSwitch(ctrl, opts.UniqueID, zone, info))
	}
	return result, nil
}
