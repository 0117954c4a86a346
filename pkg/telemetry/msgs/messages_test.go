package msgs

import (
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/stretchr/testify/require"
)

func TestMeasurementEncoding(t *testing.T) {
	m := &Measurement{Sensor: "s0", Type: "XYZ", X: -8192, Y: 8191, Z: -1, Roll: 63, Timestamp: 1}
	data, err := proto.Marshal(m)
	require.NoError(t, err)
	var decoded Measurement
	require.NoError(t, proto.Unmarshal(data, &decoded))
	require.Equal(t, *m, decoded)
	require.Contains(t, m.String(), `sensor:"s0"`)
}

func TestRequestDefaults(t *testing.T) {
	var r Request
	require.NoError(t, proto.Unmarshal(nil, &r))
	require.Equal(t, Request{}, r)
}
