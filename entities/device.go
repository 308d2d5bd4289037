package entities

import (
	"fmt"

	envisalink "github.com/caarlos0/homekit-envisalink"
)

const DefaultZoneType = "opening"

// ZoneInfo overrides how a zone is presented.
type ZoneInfo struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// PartitionInfo overrides how a partition is presented.
type PartitionInfo struct {
	Name string `yaml:"name"`
}

// Data holds the per zone and partition overrides, usually loaded from a
// YAML file.
type Data struct {
	Zones      map[int]ZoneInfo      `yaml:"zones"`
	Partitions map[int]PartitionInfo `yaml:"partitions"`
}

func FindZoneInfo(n int, zones map[int]ZoneInfo) (ZoneInfo, bool) {
	info, ok := zones[n]
	return info, ok
}

func FindPartitionInfo(n int, partitions map[int]PartitionInfo) (PartitionInfo, bool) {
	info, ok := partitions[n]
	return info, ok
}

type DeviceInfo struct {
	Identifiers      []string
	Name             string
	Manufacturer     string
	Model            string
	SWVersion        string
	HWVersion        string
	ConfigurationURL string
}

func zoneDevice(uid string, info envisalink.Info, zone int, name string) DeviceInfo {
	if name == "" {
		name = fmt.Sprintf("%s Zone %d", info.PanelType, zone)
	}
	return newDevice(info, fmt.Sprintf("%s_Zone %d", uid, zone), name, "Zone")
}

func partitionDevice(uid string, info envisalink.Info, partition int, name string) DeviceInfo {
	if name == "" {
		name = fmt.Sprintf("%s Partition %d", info.PanelType, partition)
	}
	return newDevice(info, fmt.Sprintf("%s_Partition %d", uid, partition), name, "Partition")
}

func newDevice(info envisalink.Info, id, name, kind string) DeviceInfo {
	return DeviceInfo{
		Identifiers:      []string{id},
		Name:             name,
		Manufacturer:     envisalink.Manufacturer,
		Model:            fmt.Sprintf("Envisalink %d: %s %s", info.EnvisalinkVersion, info.PanelType, kind),
		SWVersion:        info.FirmwareVersion,
		HWVersion:        fmt.Sprintf("%d", info.EnvisalinkVersion),
		ConfigurationURL: fmt.Sprintf("http://%s", info.Host),
	}
}
