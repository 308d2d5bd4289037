package envisalink

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	cmdPoll           = "000"
	cmdStatusReport   = "001"
	cmdDumpZoneTimers = "008"
	cmdLogin          = "005"
	cmdKeystrokes     = "071"
)

const (
	evtAck                = "500"
	evtCommandError       = "501"
	evtSystemError        = "502"
	evtLogin              = "505"
	evtKeypadLEDState     = "510"
	evtKeypadLEDFlash     = "511"
	evtZoneAlarm          = "601"
	evtZoneAlarmRestore   = "602"
	evtZoneTamper         = "603"
	evtZoneTamperRestore  = "604"
	evtZoneFault          = "605"
	evtZoneFaultRestore   = "606"
	evtZoneOpen           = "609"
	evtZoneRestored       = "610"
	evtZoneTimerDump      = "615"
	evtBypassedZonesDump  = "616"
	evtPartitionReady     = "650"
	evtPartitionNotReady  = "651"
	evtPartitionArmed     = "652"
	evtPartitionForceArm  = "653"
	evtPartitionAlarm     = "654"
	evtPartitionDisarmed  = "655"
	evtExitDelay          = "656"
	evtEntryDelay         = "657"
	evtKeypadLockout      = "658"
	evtPartitionArmFailed = "659"
	evtChimeEnabled       = "663"
	evtChimeDisabled      = "664"
	evtFailedToArm        = "672"
	evtPartitionBusy      = "673"
	evtArming             = "674"
	evtBatteryTrouble     = "800"
	evtBatteryRestore     = "801"
	evtACTrouble          = "802"
	evtACRestore          = "803"
	evtTroubleLEDOn       = "840"
	evtTroubleLEDOff      = "841"
)

// login replies carried in the data of a 505 event.
const (
	loginFailed  = "0"
	loginOK      = "1"
	loginTimeout = "2"
	loginRequest = "3"
)

type message struct {
	code string
	data string
}

func (m message) String() string {
	return m.code + m.data
}

func checksum(s string) string {
	var sum byte
	for i := 0; i < len(s); i++ {
		sum += s[i]
	}
	return fmt.Sprintf("%02X", sum)
}

func makePayload(cmd, data string) []byte {
	body := cmd + data
	return []byte(body + checksum(body) + "\r\n")
}

func parseMessage(line string) (message, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 5 {
		return message{}, fmt.Errorf("message too short: %q", line)
	}
	body, sum := line[:len(line)-2], line[len(line)-2:]
	if want := checksum(body); !strings.EqualFold(want, sum) {
		return message{}, fmt.Errorf("invalid checksum for %q: want %s, got %s", line, want, sum)
	}
	return message{
		code: body[:3],
		data: body[3:],
	}, nil
}

// zoneFromData parses the zone number at the end of the message data. Some
// events prefix it with a partition digit.
func zoneFromData(data string) (int, error) {
	if len(data) < 3 {
		return 0, fmt.Errorf("invalid zone data: %q", data)
	}
	return strconv.Atoi(data[len(data)-3:])
}

func partitionFromData(data string) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("invalid partition data: %q", data)
	}
	return strconv.Atoi(data[:1])
}

func bypassKeys(zone int) string {
	return fmt.Sprintf("*1%02d#", zone)
}
