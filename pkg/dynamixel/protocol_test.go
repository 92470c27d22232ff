package dynamixel

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	// Ping instruction for ID 1 from the Protocol 2.0 reference.
	pkt := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01}
	assert.Equal(t, uint16(0x4E19), crc16(pkt))
}

func TestEncodeInstruction_Ping(t *testing.T) {
	got := EncodeInstruction(1, InstPing, nil)
	expected := []byte{0xFF, 0xFF, 0xFD, 0x00, 0x01, 0x03, 0x00, 0x01, 0x19, 0x4E}
	assert.Equal(t, expected, got)
}

func TestStuffing(t *testing.T) {
	tests := []struct {
		in      []byte
		stuffed []byte
	}{
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{[]byte{0xFF, 0xFF, 0xFD}, []byte{0xFF, 0xFF, 0xFD, 0xFD}},
		{[]byte{0x55, 0xFF, 0xFF, 0xFD, 0x10}, []byte{0x55, 0xFF, 0xFF, 0xFD, 0xFD, 0x10}},
		{[]byte{0xFF, 0xFF, 0xFD, 0xFD}, []byte{0xFF, 0xFF, 0xFD, 0xFD, 0xFD}},
	}

	for _, tt := range tests {
		got := stuff(tt.in)
		assert.Equal(t, tt.stuffed, got, "stuff(% X)", tt.in)
		assert.Equal(t, tt.in, unstuff(got), "unstuff(% X)", got)
	}
}

func TestDecodeStatus(t *testing.T) {
	params := []byte{0xFF, 0xFF, 0xFD, 0x04, 0x00, 0x00}
	pkt := statusPacket(3, 0x00, params...)

	st, err := decodeStatus(pkt)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ID)
	assert.Equal(t, params, st.Params)
	assert.NoError(t, st.Err())
}

func TestDecodeStatus_Errors(t *testing.T) {
	good := statusPacket(1, 0x00, 0x10, 0x20)

	corrupt := bytes.Clone(good)
	corrupt[len(corrupt)-1] ^= 0xFF
	_, err := decodeStatus(corrupt)
	assert.ErrorIs(t, err, ErrChecksum)

	_, err = decodeStatus(good[:len(good)-1])
	assert.ErrorIs(t, err, ErrMalformed)

	notStatus := EncodeInstruction(1, InstRead, []byte{0x00, 0x00})
	_, err = decodeStatus(notStatus)
	assert.ErrorIs(t, err, ErrMalformed)

	st, err := decodeStatus(statusPacket(2, 0x04))
	require.NoError(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(st.Err(), &statusErr))
	assert.Equal(t, 2, statusErr.ID)
	assert.EqualError(t, statusErr, "dynamixel: servo 2: data range error")

	alert, err := decodeStatus(statusPacket(2, 0x80))
	require.NoError(t, err)
	assert.NoError(t, alert.Err())
}

func TestValues(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0xFC, 0xFF, 0xFF}, EncodeValue(-1024, 4))
	assert.Equal(t, []byte{0x01}, EncodeValue(1, 1))
	assert.Equal(t, uint32(0xFFFFFC00), DecodeValue([]byte{0x00, 0xFC, 0xFF, 0xFF}))
	assert.Equal(t, uint32(2048), DecodeValue(EncodeValue(2048, 4)))
}

// statusPacket builds a status packet the way a servo would.
func statusPacket(id int, errByte byte, params ...byte) []byte {
	return EncodeInstruction(id, instStatus, append([]byte{errByte}, params...))
}
