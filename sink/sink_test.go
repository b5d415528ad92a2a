package sink

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSinkWritesPackedRecord(t *testing.T) {
	var buf bytes.Buffer
	s := NewFileSink(&buf)

	rec := Record{
		Msg:        []byte{0x8D, 0x48, 0x40, 0xD6},
		Samples:    []int16{1, -2, 3},
		SampleNdx:  123456,
		SNR:        4.5,
		Thetas:     []float64{0.1, -0.2},
		Amplitudes: []float64{1.0, 0.9},
	}
	require.NoError(t, s.Write(rec))

	var msgLen uint16
	r := bytes.NewReader(buf.Bytes())
	require.NoError(t, binary.Read(r, binary.NativeEndian, &msgLen))
	require.EqualValues(t, len(rec.Msg), msgLen)

	msg := make([]byte, msgLen)
	_, err := r.Read(msg)
	require.NoError(t, err)
	require.Equal(t, rec.Msg, msg)

	var samplesLen uint16
	require.NoError(t, binary.Read(r, binary.NativeEndian, &samplesLen))
	require.EqualValues(t, len(rec.Samples), samplesLen)

	samples := make([]int16, samplesLen)
	require.NoError(t, binary.Read(r, binary.NativeEndian, &samples))
	require.Equal(t, rec.Samples, samples)

	var sampleNdx uint64
	require.NoError(t, binary.Read(r, binary.NativeEndian, &sampleNdx))
	require.EqualValues(t, rec.SampleNdx, sampleNdx)

	var snr float32
	require.NoError(t, binary.Read(r, binary.NativeEndian, &snr))
	require.EqualValues(t, rec.SNR, snr)

	var thetaCount uint8
	require.NoError(t, binary.Read(r, binary.NativeEndian, &thetaCount))
	require.EqualValues(t, len(rec.Thetas), thetaCount)
}

func TestRawHexSinkSkipsWouldBeNonASCII(t *testing.T) {
	// msg bytes are always representable as two uppercase hex digits, so
	// Write's non-ASCII guard never actually trips for real messages; this
	// assembles a line the same way Write does and checks it is all ASCII.
	rec := Record{Msg: []byte{0xFF, 0x00, 0xAB}}
	line := make([]byte, 0, len(rec.Msg)*2+3)
	line = append(line, '*')
	for _, b := range rec.Msg {
		line = append(line, hexDigits[b>>4], hexDigits[b&0xf])
	}
	line = append(line, ';', '\n')
	for _, b := range line {
		require.LessOrEqual(t, b, byte(0x7f))
	}
}
