package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipbus/uhal-go/internal/dummyhw"
	"github.com/ipbus/uhal-go/pkg/log"
	"github.com/ipbus/uhal-go/pkg/version"
	"github.com/ipbus/uhal-go/pkg/wire"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) count(cat log.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Category == cat {
			n++
		}
	}
	return n
}

func startDevice(t *testing.T) *dummyhw.Device {
	t.Helper()
	d := dummyhw.New(dummyhw.Config{Version: version.IPbus20})
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { d.Stop() })
	return d
}

func newTransport(t *testing.T, addr net.Addr, cfg Config) *TCP {
	t.Helper()
	host, port, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	tr := NewTCP(host, port, cfg)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func readPackets(t *testing.T, addr uint32, words uint32) (*wire.Packer, []byte) {
	t.Helper()
	p, err := wire.NewPacker(wire.NewIPbus2(), 0)
	require.NoError(t, err)
	out := make([]byte, words*wire.WordSize)
	require.NoError(t, p.Pack(wire.NewReadInfo(addr, words, wire.Incremental, out)))
	return p, out
}

func TestTCPConnectsLazily(t *testing.T) {
	d := startDevice(t)
	tr := newTransport(t, d.Addr(), Config{})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, d.ConnectionCount())
	assert.Equal(t, StateUnconnected, tr.State())
	assert.Equal(t, DefaultTimeout, tr.Timeout())
	assert.Equal(t, wire.DefaultMaxPacketSize, tr.MaxPacketSize())

	d.Poke(0x100, 0xCAFE)
	p, out := readPackets(t, 0x100, 1)
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))

	assert.Equal(t, StateConnected, tr.State())
	assert.Equal(t, uint32(0xCAFE), binary.BigEndian.Uint32(out))
	require.NoError(t, wire.NewIPbus2().ValidateReply(p.AccumulatedPackets()[0]))
}

func TestTCPDispatchMultiplePackets(t *testing.T) {
	d := startDevice(t)
	tr := newTransport(t, d.Addr(), Config{MaxPacketSize: 64})
	for i := range uint32(40) {
		d.Poke(0x200+i, i*3)
	}

	p, err := wire.NewPacker(wire.NewIPbus2(), tr.MaxPacketSize())
	require.NoError(t, err)
	out := make([]byte, 40*wire.WordSize)
	require.NoError(t, p.Pack(wire.NewReadInfo(0x200, 40, wire.Incremental, out)))
	require.Greater(t, p.Len(), 1)

	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))
	for i := range uint32(40) {
		assert.Equal(t, i*3, binary.BigEndian.Uint32(out[i*4:]), "word %d", i)
	}
}

func TestTCPSkipsEmptyPackets(t *testing.T) {
	d := startDevice(t)
	tr := newTransport(t, d.Addr(), Config{})

	require.NoError(t, tr.Dispatch(context.Background(), []*wire.AccumulatedPacket{{}}))
	assert.Equal(t, StateUnconnected, tr.State())
	assert.Equal(t, 0, d.ConnectionCount())
}

func TestTCPTimeoutThenRecovers(t *testing.T) {
	d := startDevice(t)
	capture := &recordingLogger{}
	timeout := 100 * time.Millisecond
	tr := newTransport(t, d.Addr(), Config{Timeout: timeout, ProtocolLogger: capture, DeviceID: "dummy"})

	d.SetSilent(true)
	p, out := readPackets(t, 0x10, 1)
	start := time.Now()
	err := tr.Dispatch(context.Background(), p.AccumulatedPackets())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 10*timeout)
	assert.Equal(t, StateUnconnected, tr.State())
	assert.Equal(t, 1, capture.count(log.CategoryError))

	d.SetSilent(false)
	d.Poke(0x10, 7)
	p, out = readPackets(t, 0x10, 1)
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(out))
}

func TestTCPTimeoutResetsPerPacket(t *testing.T) {
	d := startDevice(t)
	d.SetReplyDelay(60 * time.Millisecond)
	tr := newTransport(t, d.Addr(), Config{Timeout: 150 * time.Millisecond, MaxPacketSize: 64})

	// Each packet takes ~60ms; the sum exceeds the timeout but no single
	// packet does.
	p, err := wire.NewPacker(wire.NewIPbus2(), tr.MaxPacketSize())
	require.NoError(t, err)
	out := make([]byte, 40*wire.WordSize)
	require.NoError(t, p.Pack(wire.NewReadInfo(0, 40, wire.Incremental, out)))
	require.GreaterOrEqual(t, p.Len(), 3)

	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))
}

func TestTCPConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr()
	l.Close()

	tr := newTransport(t, addr, Config{Timeout: time.Second})
	p, _ := readPackets(t, 0, 1)
	err = tr.Dispatch(context.Background(), p.AccumulatedPackets())
	require.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateUnconnected, tr.State())
}

func TestTCPBadService(t *testing.T) {
	tr := NewTCP("127.0.0.1", "no-such-ipbus-service", Config{Timeout: time.Second})
	defer tr.Close()
	p, _ := readPackets(t, 0, 1)
	err := tr.Dispatch(context.Background(), p.AccumulatedPackets())
	require.ErrorIs(t, err, ErrTransport)
}

func TestTCPContextCancel(t *testing.T) {
	d := startDevice(t)
	d.SetSilent(true)
	tr := newTransport(t, d.Addr(), Config{Timeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	p, _ := readPackets(t, 0, 1)
	start := time.Now()
	err := tr.Dispatch(ctx, p.AccumulatedPackets())
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateUnconnected, tr.State())
}

func TestTCPPeerReset(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		io.ReadFull(conn, make([]byte, 12))
		conn.Close()
	}()

	tr := newTransport(t, l.Addr(), Config{Timeout: time.Second})
	p, _ := readPackets(t, 0, 1)
	err = tr.Dispatch(context.Background(), p.AccumulatedPackets())
	require.ErrorIs(t, err, ErrTransport)
}

func TestTCPReplyAcrossReads(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	p, out := readPackets(t, 0x40, 2)
	pkt := p.AccumulatedPackets()[0]
	reply := make([]byte, pkt.ReplySize())
	s := wire.NewIPbus2()
	binary.BigEndian.PutUint32(reply[0:], s.PacketHeader(pkt.ID))
	binary.BigEndian.PutUint32(reply[4:], s.TransactionHeader(0, 2, 0, wire.InfoSuccess))
	binary.BigEndian.PutUint32(reply[8:], 0x11)
	binary.BigEndian.PutUint32(reply[12:], 0x22)

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.ReadFull(conn, make([]byte, pkt.SendSize()))
		conn.Write(reply[:6])
		time.Sleep(20 * time.Millisecond)
		conn.Write(reply[6:])
		io.Copy(io.Discard, conn)
	}()

	tr := newTransport(t, l.Addr(), Config{Timeout: time.Second})
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))
	require.NoError(t, s.ValidateReply(pkt))
	assert.Equal(t, uint32(0x22), binary.BigEndian.Uint32(out[4:]))
}

func TestTCPClose(t *testing.T) {
	d := startDevice(t)
	tr := newTransport(t, d.Addr(), Config{})

	p, _ := readPackets(t, 0, 1)
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, StateClosed, tr.State())

	err := tr.Dispatch(context.Background(), p.AccumulatedPackets())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestTCPCapturesFrames(t *testing.T) {
	d := startDevice(t)
	capture := &recordingLogger{}
	tr := newTransport(t, d.Addr(), Config{ProtocolLogger: capture, DeviceID: "board", Protocol: "ipbustcp-2.0"})

	p, _ := readPackets(t, 0, 1)
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))

	capture.mu.Lock()
	defer capture.mu.Unlock()
	var frames, summaries, states int
	for _, e := range capture.events {
		assert.Equal(t, "board", e.DeviceID)
		switch {
		case e.Frame != nil:
			frames++
		case e.Packet != nil:
			summaries++
			assert.Equal(t, "ipbustcp-2.0", e.Packet.Protocol)
			assert.NotNil(t, e.Packet.Duration)
			assert.NotEmpty(t, e.ConnectionID)
		case e.StateChange != nil:
			states++
		}
	}
	assert.Equal(t, 2, frames)
	assert.Equal(t, 1, summaries)
	assert.Equal(t, 4, states)
}

func TestTCPCapturesPacketStates(t *testing.T) {
	d := startDevice(t)
	capture := &recordingLogger{}
	tr := newTransport(t, d.Addr(), Config{MaxPacketSize: 64, ProtocolLogger: capture})

	p, err := wire.NewPacker(wire.NewIPbus2(), tr.MaxPacketSize())
	require.NoError(t, err)
	require.NoError(t, p.Pack(wire.NewReadInfo(0, 20, wire.Incremental, make([]byte, 20*wire.WordSize))))
	require.Equal(t, 2, p.Len())
	require.NoError(t, tr.Dispatch(context.Background(), p.AccumulatedPackets()))

	capture.mu.Lock()
	defer capture.mu.Unlock()
	var got []string
	for _, e := range capture.events {
		if e.StateChange != nil {
			got = append(got, e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{
		"CONNECTED",
		"SENDING", "AWAITING_REPLY", "CONNECTED",
		"SENDING", "AWAITING_REPLY", "CONNECTED",
	}, got)
	assert.Equal(t, StateConnected, tr.State())
}

func TestIOErrorClassification(t *testing.T) {
	tr := NewTCP("localhost", "50001", Config{})
	err := tr.ioError(context.Background(), "read", errors.New("boom"))
	assert.ErrorIs(t, err, ErrTransport)

	err = tr.ioError(context.Background(), "write", &net.OpError{Op: "write", Err: timeoutErr{}})
	assert.ErrorIs(t, err, ErrTimeout)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
