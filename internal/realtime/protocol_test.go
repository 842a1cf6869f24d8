package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientFrames(t *testing.T) {
	raw := `{"type":"device_discovered","request_id":"r9","payload":{"deviceId":"aa:bb","deviceName":"Pixel","signal":-72,"studentId":"S4","period":3}}`
	var frame Frame
	require.NoError(t, json.Unmarshal([]byte(raw), &frame))

	msg, err := Decode(frame)
	require.NoError(t, err)
	d, ok := msg.(*DeviceDiscovered)
	require.True(t, ok)
	assert.Equal(t, "aa:bb", d.DeviceID)
	assert.Equal(t, -72, d.Signal)
	require.NotNil(t, d.StudentID)
	assert.Equal(t, "S4", *d.StudentID)
	require.NotNil(t, d.Period)
	assert.Equal(t, 3, *d.Period)
}

func TestDecodeAcceptsEmptyPayload(t *testing.T) {
	msg, err := Decode(Frame{Type: TypeScanStart})
	require.NoError(t, err)
	assert.Equal(t, &ScanStart{}, msg)
}

func TestDecodeRejectsUnknownTypeAndBadPayload(t *testing.T) {
	_, err := Decode(Frame{Type: "ping"})
	assert.Error(t, err)

	_, err = Decode(Frame{Type: TypeSubscribe, Payload: json.RawMessage(`{"sessionId":42}`)})
	assert.Error(t, err)
}

func TestEncodeOmitsEmptyOptionalFields(t *testing.T) {
	frame, err := Encode("", AttendanceResult{Success: false, Message: "no active session"})
	require.NoError(t, err)
	assert.Equal(t, TypeAttendanceResult, frame.Type)
	assert.JSONEq(t, `{"success":false,"message":"no active session"}`, string(frame.Payload))

	body, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "request_id")
}
