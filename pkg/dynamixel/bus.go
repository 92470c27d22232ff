package dynamixel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultTimeout bounds the wait for a single status packet.
const DefaultTimeout = 100 * time.Millisecond

// BusConfig configures a serial connection to a Dynamixel bus.
type BusConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// Bus serializes request/response exchanges on one serial line.
type Bus struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	timeout time.Duration
}

// NewBus opens the serial port described by cfg.
func NewBus(cfg BusConfig) (*Bus, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	// Short reads let the bus enforce its own deadline and watch ctx.
	if err := port.SetReadTimeout(10 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	return NewBusWithPort(port, cfg.Timeout), nil
}

// NewBusWithPort wraps an already open port. A Read returning (0, nil) is
// treated as a read timeout.
func NewBusWithPort(port io.ReadWriteCloser, timeout time.Duration) *Bus {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Bus{port: port, timeout: timeout}
}

// Close closes the underlying port.
func (b *Bus) Close() error {
	return b.port.Close()
}

// Ping returns the model number of servo id.
func (b *Bus) Ping(ctx context.Context, id int) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.send(EncodeInstruction(id, InstPing, nil)); err != nil {
		return 0, err
	}
	st, err := b.receive(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(st.Params) < 2 {
		return 0, fmt.Errorf("%w: ping reply too short", ErrMalformed)
	}
	return uint16(st.Params[0]) | uint16(st.Params[1])<<8, nil
}

// SyncRead reads the same register from several servos. The result is
// index-aligned with ids.
func (b *Bus) SyncRead(ctx context.Context, e Entry, ids []int) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	params := append(le16(e.Addr), le16(e.Size)...)
	for _, id := range ids {
		params = append(params, byte(id))
	}
	if err := b.send(EncodeInstruction(BroadcastID, InstSyncRead, params)); err != nil {
		return nil, err
	}

	out := make([][]byte, len(ids))
	for i, id := range ids {
		st, err := b.receive(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(st.Params) != e.Size {
			return nil, fmt.Errorf("%w: servo %d returned %d bytes, want %d",
				ErrMalformed, id, len(st.Params), e.Size)
		}
		out[i] = st.Params
	}
	return out, nil
}

// SyncWrite writes one value per servo to the same register. Sync writes
// are broadcast and not acknowledged.
func (b *Bus) SyncWrite(ctx context.Context, e Entry, ids []int, values []int) error {
	if len(ids) != len(values) {
		return fmt.Errorf("sync write: %d ids for %d values", len(ids), len(values))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	params := append(le16(e.Addr), le16(e.Size)...)
	for i, id := range ids {
		params = append(params, byte(id))
		params = append(params, EncodeValue(values[i], e.Size)...)
	}
	return b.send(EncodeInstruction(BroadcastID, InstSyncWrite, params))
}

func (b *Bus) send(pkt []byte) error {
	if r, ok := b.port.(interface{ ResetInputBuffer() error }); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return fmt.Errorf("reset input: %w", err)
		}
	}
	if _, err := b.port.Write(pkt); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// receive reads one status packet from id.
func (b *Bus) receive(ctx context.Context, id int) (Status, error) {
	deadline := time.Now().Add(b.timeout)

	// Skip noise up to the header.
	pkt := make([]byte, 0, 16)
	one := make([]byte, 1)
	for !endsWithHeader(pkt) {
		if err := b.readFull(ctx, deadline, one); err != nil {
			return Status{}, err
		}
		pkt = append(pkt, one[0])
	}
	pkt = pkt[len(pkt)-3:]

	rest := make([]byte, 4)
	if err := b.readFull(ctx, deadline, rest); err != nil {
		return Status{}, err
	}
	pkt = append(pkt, rest...)

	length := int(rest[2]) | int(rest[3])<<8
	body := make([]byte, length)
	if err := b.readFull(ctx, deadline, body); err != nil {
		return Status{}, err
	}
	pkt = append(pkt, body...)

	st, err := decodeStatus(pkt)
	if err != nil {
		return Status{}, err
	}
	if st.ID != id {
		return Status{}, fmt.Errorf("%w: reply from servo %d, want %d", ErrMalformed, st.ID, id)
	}
	return st, st.Err()
}

func (b *Bus) readFull(ctx context.Context, deadline time.Time, buf []byte) error {
	for off := 0; off < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		n, err := b.port.Read(buf[off:])
		if err != nil {
			return fmt.Errorf("read packet: %w", err)
		}
		off += n
	}
	return nil
}
