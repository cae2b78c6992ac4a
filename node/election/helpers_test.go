package election

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanmaster/lanmaster/protocol/identity"
	"github.com/lanmaster/lanmaster/protocol/message"
	"github.com/lanmaster/lanmaster/shared/timers"
	"github.com/lanmaster/lanmaster/shared/timers/timerstest"
)

func testConfig() Config {
	return Config{
		WhoIsMasterTimeout:         200 * time.Millisecond,
		WaitForMasterTimeout:       500 * time.Millisecond,
		MonitoringMasterTimeout:    350 * time.Millisecond,
		HeartbeatInterval:          100 * time.Millisecond,
		ControlRequestInterval:     1 * time.Second,
		ControlWaitResponseTimeout: 100 * time.Millisecond,
		ResponseBufferSize:         8,
	}
}

// testIdentity returns identities ordered by i: a lower i outranks a higher one.
func testIdentity(i int) identity.NodeIdentity {
	return identity.NodeIdentity{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, byte(i + 1)},
		ProcessID:    uint32(1000 - i),
	}
}

func testAddr(i int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, byte(i+1)), Port: 5000}
}

type sent struct {
	to  *net.UDPAddr // nil for broadcast
	msg *message.Message
}

type recordingTransport struct {
	sent []sent
	fail error
}

func (r *recordingTransport) record(to *net.UDPAddr, data []byte) error {
	if r.fail != nil {
		return r.fail
	}
	msg, err := message.Decode(data)
	if err != nil {
		return err
	}
	r.sent = append(r.sent, sent{to: to, msg: msg})
	return nil
}

func (r *recordingTransport) SendUnicast(addr *net.UDPAddr, data []byte) error {
	return r.record(addr, data)
}

func (r *recordingTransport) SendBroadcast(data []byte) error {
	return r.record(nil, data)
}

func (r *recordingTransport) reset() { r.sent = nil }

type applied struct {
	brightness int32
	text       string
}

type fakeSensor struct {
	luminosity  int32
	temperature int32
	applied     []applied
}

func (f *fakeSensor) Readings() (int32, int32) { return f.luminosity, f.temperature }

func (f *fakeSensor) Apply(brightness int32, text string) {
	f.applied = append(f.applied, applied{brightness: brightness, text: text})
}

type recordingObserver struct {
	states []Snapshot
	rounds []Round
}

func (r *recordingObserver) OnStateChange(s Snapshot) { r.states = append(r.states, s) }
func (r *recordingObserver) OnControlRound(rd Round)  { r.rounds = append(r.rounds, rd) }

type fixture struct {
	clock     *timerstest.Clock
	svc       *timers.Service
	transport *recordingTransport
	sensor    *fakeSensor
	observer  *recordingObserver
	node      *Node
}

func newFixture(t *testing.T, self identity.NodeIdentity) *fixture {
	t.Helper()
	f := &fixture{
		clock:     timerstest.NewClock(),
		transport: &recordingTransport{},
		sensor:    &fakeSensor{luminosity: 500, temperature: 20},
		observer:  &recordingObserver{},
	}
	f.svc = timers.New(f.clock)

	node, err := NewNode(testConfig(), self, f.svc, f.transport, f.sensor, f.observer)
	require.NoError(t, err)
	f.node = node
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.svc.DrainPending()
}

func (f *fixture) deliver(t *testing.T, from int, msg *message.Message) error {
	t.Helper()
	data, err := message.Marshal(msg)
	require.NoError(t, err)
	return f.node.HandleDatagram(testAddr(from), data)
}

// assertRoleTimers checks that exactly the timers of the current role are armed.
func assertRoleTimers(t *testing.T, n *Node) {
	t.Helper()
	armed := func(h timers.Handle) bool { return n.timers.Armed(h) }

	switch n.state {
	case WithoutMaster:
		assert.True(t, armed(n.whoIsMasterTimer) != armed(n.waitForMasterTimer),
			"exactly one of whoIsMaster/waitForMaster must be armed")
		assert.False(t, armed(n.monitoringMasterTimer))
		assert.False(t, armed(n.heartbeatTimer))
		assert.False(t, armed(n.controlRequestTimer))
		assert.False(t, armed(n.controlWaitResponseTimer))
	case Slave:
		assert.True(t, armed(n.monitoringMasterTimer))
		assert.False(t, armed(n.whoIsMasterTimer))
		assert.False(t, armed(n.waitForMasterTimer))
		assert.False(t, armed(n.heartbeatTimer))
		assert.False(t, armed(n.controlRequestTimer))
		assert.False(t, armed(n.controlWaitResponseTimer))
	case Master:
		assert.True(t, armed(n.heartbeatTimer))
		assert.True(t, armed(n.controlRequestTimer))
		assert.False(t, armed(n.whoIsMasterTimer))
		assert.False(t, armed(n.waitForMasterTimer))
		assert.False(t, armed(n.monitoringMasterTimer))
	}
}
