package stream

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

func TestWriterRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Publish(&msgs.Measurement{Sensor: "a", Alpha: 1}))
	require.NoError(t, w.Publish(&msgs.Measurement{Sensor: "b", X: -3}))

	m, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, "a", m.Sensor)
	m, err = Read(&buf)
	require.NoError(t, err)
	require.Equal(t, int32(-3), m.X)
	_, err = Read(&buf)
	require.Equal(t, io.EOF, err)
}

func TestReadRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(MaxRecordSize+1)))
	_, err := Read(&buf)
	require.Error(t, err)

	buf.Reset()
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0xffffffff)))
	_, err = Read(&buf)
	require.Error(t, err)
}
