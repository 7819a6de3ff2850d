package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipbus/uhal-go/internal/dummyhw"
	"github.com/ipbus/uhal-go/pkg/log"
	"github.com/ipbus/uhal-go/pkg/transport"
	"github.com/ipbus/uhal-go/pkg/valmem"
	"github.com/ipbus/uhal-go/pkg/version"
	"github.com/ipbus/uhal-go/pkg/wire"
)

func startDevice(t *testing.T, v version.Version) *dummyhw.Device {
	t.Helper()
	d := dummyhw.New(dummyhw.Config{Version: v})
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { d.Stop() })
	return d
}

func newClient(t *testing.T, uri string, cfg Config) *Client {
	t.Helper()
	c, err := DefaultRegistry().New("dummy", uri, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConcreteScenario(t *testing.T) {
	for _, v := range version.Supported() {
		t.Run(v.String(), func(t *testing.T) {
			d := startDevice(t, v)
			c := newClient(t, d.URI(), Config{})
			ctx := context.Background()

			require.NoError(t, c.Write(0x10, 0x1))
			reg, err := c.Read(0x10)
			require.NoError(t, err)
			require.NoError(t, c.WriteBlock(0x20, []uint32{1, 2, 3}, wire.Incremental))
			block, err := c.ReadBlock(0x20, 3, wire.Incremental)
			require.NoError(t, err)
			assert.Equal(t, 1, c.Queued())

			require.NoError(t, c.Dispatch(ctx))

			got, err := reg.Value()
			require.NoError(t, err)
			assert.Equal(t, uint32(0x1), got)
			values, err := block.Value()
			require.NoError(t, err)
			assert.Equal(t, []uint32{1, 2, 3}, values)
			assert.Equal(t, 0, c.Queued())
		})
	}
}

func TestHandleUnresolvedUntilDispatch(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.Poke(0x5, 0xABCD)
	c := newClient(t, d.URI(), Config{})

	reg, err := c.Read(0x5)
	require.NoError(t, err)
	assert.False(t, reg.Valid())
	_, err = reg.Value()
	assert.ErrorIs(t, err, valmem.ErrUnresolvedValue)

	require.NoError(t, c.Dispatch(context.Background()))
	for range 3 {
		v, err := reg.Value()
		require.NoError(t, err)
		assert.Equal(t, uint32(0xABCD), v)
	}

	// Later dispatches never touch a resolved handle.
	d.Poke(0x5, 0)
	require.NoError(t, c.Write(0x5, 0x1))
	require.NoError(t, c.Dispatch(context.Background()))
	v, _ := reg.Value()
	assert.Equal(t, uint32(0xABCD), v)
}

func TestDispatchEmptyQueue(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	require.NoError(t, c.Dispatch(context.Background()))
	require.NoError(t, c.Dispatch(context.Background()))
	assert.Equal(t, 0, d.ConnectionCount())
}

func TestLargeBlockSplitsAcrossPackets(t *testing.T) {
	for _, v := range version.Supported() {
		t.Run(v.String(), func(t *testing.T) {
			d := startDevice(t, v)
			c := newClient(t, d.URI()+"?max_packet_size=256", Config{})

			values := make([]uint32, 700)
			for i := range values {
				values[i] = uint32(i) ^ 0x5A5A0000
			}
			require.NoError(t, c.WriteBlock(0x1000, values, wire.Incremental))
			block, err := c.ReadBlock(0x1000, uint32(len(values)), wire.Incremental)
			require.NoError(t, err)
			tail, err := c.Read(0x1000 + 699)
			require.NoError(t, err)
			assert.Greater(t, c.Queued(), 2)

			require.NoError(t, c.Dispatch(context.Background()))
			got, err := block.Value()
			require.NoError(t, err)
			assert.Equal(t, values, got)
			last, _ := tail.Value()
			assert.Equal(t, values[699], last)
		})
	}
}

func TestMaskedAccess(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.Poke(0x8, 0xFFFF0000)
	c := newClient(t, d.URI(), Config{})

	require.NoError(t, c.WriteMasked(0x8, 0xA, 0x0000F000))
	nibble, err := c.ReadMasked(0x8, 0x0000F000)
	require.NoError(t, err)
	whole, err := c.Read(0x8)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))

	v, _ := nibble.Value()
	assert.Equal(t, uint32(0xA), v)
	assert.Equal(t, uint32(0x0000F000), nibble.Mask())
	w, _ := whole.Value()
	assert.Equal(t, uint32(0xFFFFA000), w)

	err = c.WriteMasked(0x8, 0x1F, 0x0000F000)
	assert.ErrorIs(t, err, ErrValueExceedsMask)
	err = c.WriteMasked(0x8, 0x3, 0x80000000)
	assert.ErrorIs(t, err, ErrValueExceedsMask)
	assert.Equal(t, 0, c.Queued())
}

func TestWriteMaskedFullMaskIsPlainWrite(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	require.NoError(t, c.WriteMasked(0x9, 0xDEADBEEF, FullMask))
	require.NoError(t, c.Dispatch(context.Background()))
	assert.Equal(t, uint32(0xDEADBEEF), d.Peek(0x9))
}

func TestSignedReads(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.Poke(0x30, 0xFFFFFFFE)
	d.Poke(0x31, 0x7FFFFFFF)
	c := newClient(t, d.URI(), Config{})

	single, err := c.ReadSigned(0x30)
	require.NoError(t, err)
	masked, err := c.ReadSignedMasked(0x30, 0x0000FFFF)
	require.NoError(t, err)
	block, err := c.ReadBlockSigned(0x30, 2, wire.Incremental)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))

	v, _ := single.Value()
	assert.Equal(t, int32(-2), v)
	m, _ := masked.Value()
	assert.Equal(t, int32(0xFFFE), m)
	b, _ := block.Value()
	assert.Equal(t, []int32{-2, 0x7FFFFFFF}, b)
}

func TestNonIncrementalBlock(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	require.NoError(t, c.WriteBlock(0x50, []uint32{4, 5, 6}, wire.NonIncremental))
	fifo, err := c.ReadBlock(0x50, 2, wire.NonIncremental)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))

	got, _ := fifo.Value()
	assert.Equal(t, []uint32{6, 6}, got)
	assert.Equal(t, uint32(0), d.Peek(0x51))
}

func TestRMWIdentity(t *testing.T) {
	for _, v := range version.Supported() {
		t.Run(v.String(), func(t *testing.T) {
			d := startDevice(t, v)
			d.Poke(0x60, 0x12345678)
			c := newClient(t, d.URI(), Config{})

			bits, err := c.RMWBits(0x60, 0xFFFFFFFF, 0x0)
			require.NoError(t, err)
			sum, err := c.RMWSum(0x60, 0)
			require.NoError(t, err)
			require.NoError(t, c.Dispatch(context.Background()))

			b, _ := bits.Value()
			assert.Equal(t, uint32(0x12345678), b)
			s, _ := sum.Value()
			assert.Equal(t, int32(0x12345678), s)
			assert.Equal(t, uint32(0x12345678), d.Peek(0x60))
		})
	}
}

func TestRMWModifies(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.Poke(0x61, 0xF0)
	c := newClient(t, d.URI(), Config{})

	bits, err := c.RMWBits(0x61, 0x0F, 0x100)
	require.NoError(t, err)
	sum, err := c.RMWSum(0x61, -0x101)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))

	b, _ := bits.Value()
	assert.Equal(t, uint32(0x100), b)
	s, _ := sum.Value()
	assert.Equal(t, int32(-1), s)
}

func TestReservedAddressInfo(t *testing.T) {
	d := startDevice(t, version.IPbus13)
	c := newClient(t, d.URI(), Config{})

	info, err := c.ReadReservedAddressInfo()
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))
	got, _ := info.Value()
	assert.Equal(t, dummyhw.DefaultReservedAddressInfo[:], got)

	d2 := startDevice(t, version.IPbus20)
	c2 := newClient(t, d2.URI(), Config{})
	_, err = c2.ReadReservedAddressInfo()
	assert.ErrorIs(t, err, wire.ErrMalformedPacket)
}

func TestPackErrorsAreImmediate(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	_, err := c.ReadBlock(0x0, 0, wire.Incremental)
	assert.ErrorIs(t, err, wire.ErrMalformedPacket)
	assert.ErrorIs(t, c.WriteBlock(0x0, nil, wire.Incremental), wire.ErrMalformedPacket)
	assert.Equal(t, 0, c.Queued())
}

func TestTimeoutLeavesHandlesInvalid(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.Poke(0x70, 9)
	timeout := 100 * time.Millisecond
	c := newClient(t, d.URI(), Config{Timeout: timeout})

	d.SetSilent(true)
	reg, err := c.Read(0x70)
	require.NoError(t, err)
	start := time.Now()
	err = c.Dispatch(context.Background())
	require.ErrorIs(t, err, transport.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), timeout)
	assert.False(t, reg.Valid())
	assert.Equal(t, 0, c.Queued())

	// A stale timeout flag must not fail the next dispatch.
	d.SetSilent(false)
	again, err := c.Read(0x70)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))
	v, err := again.Value()
	require.NoError(t, err)
	assert.Equal(t, uint32(9), v)
	assert.False(t, reg.Valid())
}

func TestBusErrorFailsDispatch(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.SetBusError(0x80)
	c := newClient(t, d.URI(), Config{})

	good, err := c.Read(0x7F)
	require.NoError(t, err)
	bad, err := c.Read(0x80)
	require.NoError(t, err)

	err = c.Dispatch(context.Background())
	require.ErrorIs(t, err, wire.ErrMalformedReply)
	var infoErr *wire.InfoCodeError
	require.True(t, errors.As(err, &infoErr))
	assert.Equal(t, wire.InfoBusReadError, infoErr.Code)
	assert.False(t, good.Valid())
	assert.False(t, bad.Valid())
}

func TestPing(t *testing.T) {
	for _, v := range version.Supported() {
		t.Run(v.String(), func(t *testing.T) {
			d := startDevice(t, v)
			c := newClient(t, d.URI(), Config{})

			require.NoError(t, c.Write(0x1, 0x2))
			require.NoError(t, c.Ping(context.Background()))
			assert.Equal(t, 1, c.Queued(), "ping must not touch the queue")
		})
	}
}

func TestPingUnresponsive(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	d.SetSilent(true)
	timeout := 100 * time.Millisecond
	c := newClient(t, d.URI(), Config{Timeout: timeout})

	start := time.Now()
	err := c.Ping(context.Background())
	elapsed := time.Since(start)
	require.ErrorIs(t, err, ErrPingFailed)
	assert.ErrorIs(t, err, transport.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, 10*timeout)
}

func TestPingUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	c := newClient(t, "ipbustcp-2.0://"+addr, Config{Timeout: time.Second})
	err = c.Ping(context.Background())
	require.ErrorIs(t, err, ErrPingFailed)
	assert.ErrorIs(t, err, transport.ErrTransport)
}

func TestClosedClient(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Write(0, 0), ErrClientClosed)
	_, err := c.Read(0)
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, c.Dispatch(context.Background()), ErrClientClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClientClosed)
}

func TestConcurrentCallers(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI(), Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range uint32(8) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range uint32(20) {
				addr := 0x400 + i*0x100 + j
				if err := c.Write(addr, addr); err != nil {
					errs <- err
					return
				}
				if err := c.Dispatch(context.Background()); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	for i := range uint32(8) {
		addr := 0x400 + i*0x100 + 19
		assert.Equal(t, addr, d.Peek(addr))
	}
}

func TestAccessors(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	c := newClient(t, d.URI()+"?timeout=250ms", Config{})

	assert.Equal(t, "dummy", c.ID())
	assert.Equal(t, d.URI()+"?timeout=250ms", c.URL())
	assert.Equal(t, 250*time.Millisecond, c.Timeout())
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestDispatchCapture(t *testing.T) {
	d := startDevice(t, version.IPbus20)
	capture := &recordingLogger{}
	c := newClient(t, d.URI(), Config{ProtocolLogger: capture})

	_, err := c.Read(0)
	require.NoError(t, err)
	require.NoError(t, c.Dispatch(context.Background()))

	capture.mu.Lock()
	defer capture.mu.Unlock()
	var states []string
	for _, e := range capture.events {
		assert.Equal(t, "dummy", e.DeviceID)
		if e.StateChange != nil && e.StateChange.Entity == log.StateEntityDispatch {
			states = append(states, e.StateChange.NewState)
		}
	}
	assert.Equal(t, []string{"STARTED", "COMPLETED"}, states)
}

func ExampleClient_Dispatch() {
	d := dummyhw.New(dummyhw.Config{})
	if err := d.Start(context.Background()); err != nil {
		panic(err)
	}
	defer d.Stop()

	c, err := DefaultRegistry().New("example", d.URI(), Config{})
	if err != nil {
		panic(err)
	}
	defer c.Close()

	_ = c.Write(0x10, 0x1)
	reg, _ := c.Read(0x10)
	if err := c.Dispatch(context.Background()); err != nil {
		panic(err)
	}
	v, _ := reg.Value()
	fmt.Printf("0x%x\n", v)
	// Output: 0x1
}
