package envisalink

import (
	"encoding/hex"
	"fmt"
)

const (
	zoneTimerDumpSize   = 64 * 4
	bypassDumpSize      = 8 * 2
	secondsPerTimerTick = 5
)

// lastFaultSeconds converts a zone timer into seconds since the last fault.
// Timers start at 0xffff and count down once every 5 seconds; 0 means the
// counter ran out.
func lastFaultSeconds(raw uint16) int {
	if raw == 0 {
		return MaxLastFault
	}
	return int(0xffff-raw) * secondsPerTimerTick
}

// zoneTimer is a single zone of a 615 dump. A timer still at 0xffff means the
// zone is open right now.
type zoneTimer struct {
	LastFault int
	Open      bool
}

// parseZoneTimers decodes a 615 dump: 64 little endian uint16 values in hex.
func parseZoneTimers(data string) ([]zoneTimer, error) {
	if len(data) < zoneTimerDumpSize {
		return nil, fmt.Errorf("invalid zone timer dump: want %d chars, got %d", zoneTimerDumpSize, len(data))
	}
	buf, err := hex.DecodeString(data[:zoneTimerDumpSize])
	if err != nil {
		return nil, fmt.Errorf("invalid zone timer dump: %w", err)
	}
	result := make([]zoneTimer, 0, len(buf)/2)
	for i := 0; i < len(buf); i += 2 {
		raw := uint16(buf[i]) | uint16(buf[i+1])<<8
		result = append(result, zoneTimer{
			LastFault: lastFaultSeconds(raw),
			Open:      raw == 0xffff,
		})
	}
	return result, nil
}

// parseBypassedZones decodes a 616 dump: 8 bytes in hex, one bit per zone,
// least significant bit first.
func parseBypassedZones(data string) ([]bool, error) {
	if len(data) < bypassDumpSize {
		return nil, fmt.Errorf("invalid bypass dump: want %d chars, got %d", bypassDumpSize, len(data))
	}
	buf, err := hex.DecodeString(data[:bypassDumpSize])
	if err != nil {
		return nil, fmt.Errorf("invalid bypass dump: %w", err)
	}
	result := make([]bool, 0, len(buf)*8)
	for _, octet := range buf {
		for j := 0; j < 8; j++ {
			result = append(result, octet&(1<<j) > 0)
		}
	}
	return result, nil
}

// keypad LED bits of a 510 event.
const (
	ledReady   = 1 << 0
	ledArmed   = 1 << 1
	ledMemory  = 1 << 2
	ledBypass  = 1 << 3
	ledTrouble = 1 << 4
	ledFire    = 1 << 6
)

func parseLEDs(data string) (byte, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("invalid keypad led data: %q", data)
	}
	buf, err := hex.DecodeString(data[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid keypad led data: %w", err)
	}
	return buf[0], nil
}
