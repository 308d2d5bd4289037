package envisalink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMakePayload(t *testing.T) {
	require.Equal(t, "00090\r\n", string(makePayload(cmdPoll, "")))
	require.Equal(t, "00191\r\n", string(makePayload(cmdStatusReport, "")))
	require.Equal(t, "5053CD\r\n", string(makePayload(evtLogin, loginRequest)))
	require.Equal(t, "0711*105#AC\r\n", string(makePayload(cmdKeystrokes, "1"+bypassKeys(5))))
}

func TestParseMessage(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		msg, err := parseMessage("60900332\r\n")
		require.NoError(t, err)
		require.Equal(t, message{code: evtZoneOpen, data: "003"}, msg)
	})

	t.Run("lowercase checksum", func(t *testing.T) {
		msg, err := parseMessage("5053cd")
		require.NoError(t, err)
		require.Equal(t, message{code: evtLogin, data: loginRequest}, msg)
	})

	t.Run("invalid checksum", func(t *testing.T) {
		_, err := parseMessage("60900300\r\n")
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := parseMessage("50\r\n")
		require.Error(t, err)
	})

	t.Run("roundtrip", func(t *testing.T) {
		msg, err := parseMessage(string(makePayload(evtPartitionArmed, "12")))
		require.NoError(t, err)
		require.Equal(t, message{code: evtPartitionArmed, data: "12"}, msg)
	})
}

func TestZoneFromData(t *testing.T) {
	for data, zone := range map[string]int{
		"003":  3,
		"1012": 12,
		"064":  64,
	} {
		t.Run(data, func(t *testing.T) {
			n, err := zoneFromData(data)
			require.NoError(t, err)
			require.Equal(t, zone, n)
		})
	}

	_, err := zoneFromData("1")
	require.Error(t, err)
}

func TestBypassKeys(t *testing.T) {
	require.Equal(t, "*101#", bypassKeys(1))
	require.Equal(t, "*164#", bypassKeys(64))
}
