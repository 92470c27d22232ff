// Package dynamixel speaks Dynamixel Protocol 2.0 over a serial line.
package dynamixel

import (
	"errors"
	"fmt"
)

// Instructions used by this package.
const (
	InstPing      byte = 0x01
	InstRead      byte = 0x02
	InstWrite     byte = 0x03
	InstSyncRead  byte = 0x82
	InstSyncWrite byte = 0x83

	instStatus byte = 0x55
)

// BroadcastID addresses every servo on the bus.
const BroadcastID = 0xFE

var header = [...]byte{0xFF, 0xFF, 0xFD}

var (
	ErrTimeout   = errors.New("dynamixel: timeout waiting for status packet")
	ErrChecksum  = errors.New("dynamixel: checksum mismatch")
	ErrMalformed = errors.New("dynamixel: malformed packet")
)

// StatusError carries the error field of a status packet.
type StatusError struct {
	ID   int
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dynamixel: servo %d: %s", e.ID, statusText(e.Code))
}

func statusText(code byte) string {
	switch code & 0x7F {
	case 1:
		return "result fail"
	case 2:
		return "instruction error"
	case 3:
		return "crc error"
	case 4:
		return "data range error"
	case 5:
		return "data length error"
	case 6:
		return "data limit error"
	case 7:
		return "access error"
	default:
		return fmt.Sprintf("error 0x%02x", code)
	}
}

// Status is a decoded status packet.
type Status struct {
	ID     int
	Error  byte
	Params []byte
}

// Err returns a *StatusError when the servo reported a processing error.
// The alert bit alone only flags a hardware condition and is not an error.
func (s Status) Err() error {
	if s.Error&0x7F == 0 {
		return nil
	}
	return &StatusError{ID: s.ID, Code: s.Error}
}

// crc16 is the CRC-16 (polynomial 0x8005, no reflection) used by Protocol 2.0.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// stuff inserts 0xFD after every FF FF FD sequence so that the payload can
// never be mistaken for a header.
func stuff(b []byte) []byte {
	out := make([]byte, 0, len(b)+len(b)/3)
	for _, c := range b {
		out = append(out, c)
		if endsWithHeader(out) {
			out = append(out, 0xFD)
		}
	}
	return out
}

func unstuff(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if endsWithHeader(out) && i+1 < len(b) && b[i+1] == 0xFD {
			i++
		}
	}
	return out
}

func endsWithHeader(b []byte) bool {
	n := len(b)
	return n >= 3 && b[n-3] == header[0] && b[n-2] == header[1] && b[n-1] == header[2]
}

// EncodeInstruction builds an instruction packet.
func EncodeInstruction(id int, inst byte, params []byte) []byte {
	body := stuff(append([]byte{inst}, params...))
	length := len(body) + 2

	pkt := make([]byte, 0, 7+length)
	pkt = append(pkt, header[:]...)
	pkt = append(pkt, 0x00, byte(id), byte(length), byte(length>>8))
	pkt = append(pkt, body...)

	crc := crc16(pkt)
	return append(pkt, byte(crc), byte(crc>>8))
}

// decodeStatus parses a complete status packet, header included.
func decodeStatus(pkt []byte) (Status, error) {
	if len(pkt) < 11 || !endsWithHeader(pkt[:3]) || pkt[3] != 0x00 {
		return Status{}, ErrMalformed
	}
	length := int(pkt[5]) | int(pkt[6])<<8
	if len(pkt) != 7+length {
		return Status{}, fmt.Errorf("%w: length %d for %d bytes", ErrMalformed, length, len(pkt))
	}

	n := len(pkt)
	want := uint16(pkt[n-2]) | uint16(pkt[n-1])<<8
	if got := crc16(pkt[:n-2]); got != want {
		return Status{}, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrChecksum, got, want)
	}

	body := unstuff(pkt[7 : n-2])
	if len(body) < 2 || body[0] != instStatus {
		return Status{}, fmt.Errorf("%w: not a status packet", ErrMalformed)
	}

	return Status{
		ID:     int(pkt[4]),
		Error:  body[1],
		Params: body[2:],
	}, nil
}

// EncodeValue encodes v little-endian in size bytes, two's complement.
func EncodeValue(v int, size int) []byte {
	out := make([]byte, size)
	u := uint32(int32(v))
	for i := range out {
		out[i] = byte(u >> (8 * i))
	}
	return out
}

// DecodeValue decodes a little-endian unsigned value of up to 4 bytes.
func DecodeValue(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func le16(v int) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
