package election

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lanmaster/lanmaster/protocol/identity"
	"github.com/lanmaster/lanmaster/protocol/message"
	"github.com/lanmaster/lanmaster/shared/logger"
	"github.com/lanmaster/lanmaster/shared/timers"
)

type reading struct {
	luminosity  int32
	temperature int32
}

// Node is the local participant of the election. All methods must be called
// from the goroutine that drains the timer service.
type Node struct {
	cfg       Config
	self      identity.NodeIdentity
	state     State
	master    NodeDescriptor
	timers    *timers.Service
	transport Transport
	sensor    Sensor
	observer  Observer

	// WithoutMaster
	whoIsMasterTimer   timers.Handle
	waitForMasterTimer timers.Handle
	// Slave
	monitoringMasterTimer timers.Handle
	// Master
	heartbeatTimer           timers.Handle
	controlRequestTimer      timers.Handle
	controlWaitResponseTimer timers.Handle

	responses []reading
	roundID   uuid.UUID
	sendBuf   [message.MaxSize]byte
}

func NewNode(
	cfg Config,
	self identity.NodeIdentity,
	svc *timers.Service,
	transport Transport,
	sensor Sensor,
	observer Observer,
) (*Node, error) {
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.ResponseBufferSize <= 0 {
		cfg.ResponseBufferSize = DefaultConfig().ResponseBufferSize
	}

	n := &Node{
		cfg:       cfg,
		self:      self,
		state:     WithoutMaster,
		timers:    svc,
		transport: transport,
		sensor:    sensor,
		observer:  observer,
		responses: make([]reading, 0, cfg.ResponseBufferSize),
	}

	if err := n.initTimers(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) initTimers() error {
	defs := []struct {
		handle    *timers.Handle
		name      string
		interval  time.Duration
		repeating bool
		handler   timers.Handler
	}{
		{&n.whoIsMasterTimer, "WhoIsMaster", n.cfg.WhoIsMasterTimeout, false, n.onWhoIsMasterTimeout},
		{&n.waitForMasterTimer, "WaitForMaster", n.cfg.WaitForMasterTimeout, false, n.onWaitForMasterTimeout},
		{&n.monitoringMasterTimer, "MonitoringMaster", n.cfg.MonitoringMasterTimeout, false, n.onMonitoringMasterTimeout},
		{&n.heartbeatTimer, "Heartbeat", n.cfg.HeartbeatInterval, true, n.onHeartbeat},
		{&n.controlRequestTimer, "ControlRequest", n.cfg.ControlRequestInterval, true, n.onControlRequestTimeout},
		{&n.controlWaitResponseTimer, "ControlWaitResponse", n.cfg.ControlWaitResponseTimeout, false, n.onControlWaitResponseTimeout},
	}

	var created []timers.Handle
	for _, def := range defs {
		h, err := n.timers.Create(def.interval, def.repeating, def.handler)
		if err != nil {
			for _, c := range created {
				_ = n.timers.Delete(c)
			}
			return fmt.Errorf("failed to create %s timer: %w", def.name, err)
		}
		*def.handle = h
		created = append(created, h)
	}
	return nil
}

// Start enters WithoutMaster and asks the network for a master.
func (n *Node) Start() {
	logger.LogInfo("Election", "Node %s: Starting", n.self)
	n.becomeWithoutMaster()
}

// Close releases every timer owned by the node.
func (n *Node) Close() error {
	var errs []error
	for _, h := range n.allTimers() {
		if err := n.timers.Delete(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Node) Identity() identity.NodeIdentity { return n.self }

func (n *Node) State() State { return n.state }

// Master returns the followed master. It is only meaningful while Slave.
func (n *Node) Master() (NodeDescriptor, bool) {
	if n.state != Slave {
		return NodeDescriptor{}, false
	}
	return n.master, true
}

func (n *Node) Snapshot() Snapshot {
	s := Snapshot{Identity: n.self, State: n.state}
	if m, ok := n.Master(); ok {
		s.HasMaster = true
		s.Master = m.Identity
		if m.Addr != nil {
			s.MasterAddr = m.Addr.String()
		}
	}
	return s
}

// HandleDatagram decodes one inbound datagram and dispatches it. Echoes of
// the node's own broadcasts are discarded.
func (n *Node) HandleDatagram(from *net.UDPAddr, data []byte) error {
	msg, err := message.Decode(data)
	if err != nil {
		logger.LogWarn("Election", "Node %s: Dropping malformed datagram from %s: %v", n.self, from, err)
		return err
	}
	if msg.Sender.Equal(n.self) {
		return nil
	}

	sender := NodeDescriptor{Addr: from, Identity: msg.Sender}
	logger.LogDebug("Election", "Node %s: %s received from %s (%s) while %s", n.self, msg.Type, sender.Identity, from, n.state)

	switch msg.Type {
	case message.WhoIsMaster:
		n.onWhoIsMaster(sender)
	case message.IAmMaster:
		n.onIAmMaster(sender)
	case message.PleaseWait:
		n.onPleaseWait(sender)
	case message.ControlRequest:
		n.onControlRequest(sender)
	case message.ControlResponse:
		return n.onControlResponse(sender, msg)
	case message.ControlSet:
		n.onControlSet(sender, msg)
	}
	return nil
}

func (n *Node) onWhoIsMaster(sender NodeDescriptor) {
	switch n.state {
	case Master:
		if sender.Identity.Outranks(n.self) {
			logger.LogInfo("Election", "Node %s: Conceding mastership to %s", n.self, sender.Identity)
			n.becomeWithoutMaster()
			return
		}
		n.broadcast(message.IAmMaster)
	case Slave, WithoutMaster:
		if n.self.Outranks(sender.Identity) {
			n.unicast(sender.Addr, message.NewMessage(message.PleaseWait, n.self))
		}
	}
}

func (n *Node) onIAmMaster(sender NodeDescriptor) {
	if !sender.Identity.Outranks(n.self) {
		if n.state == Master {
			n.broadcast(message.IAmMaster)
		} else {
			// Contest: the announcing node must yield to us.
			n.unicast(sender.Addr, message.NewMessage(message.WhoIsMaster, n.self))
		}
		return
	}

	switch n.state {
	case WithoutMaster, Master:
		n.becomeSlave(sender)
	case Slave:
		if !sender.Identity.Equal(n.master.Identity) {
			logger.LogInfo("Election", "Node %s: Switching master from %s to %s", n.self, n.master.Identity, sender.Identity)
			n.master = sender
			n.startTimer(n.monitoringMasterTimer, "MonitoringMaster")
			n.notifyStateChange()
			return
		}
		n.master = sender
		n.startTimer(n.monitoringMasterTimer, "MonitoringMaster")
	}
}

func (n *Node) onPleaseWait(sender NodeDescriptor) {
	if n.state != WithoutMaster || !sender.Identity.Outranks(n.self) {
		return
	}
	logger.LogInfo("Election", "Node %s: Waiting for %s to become master", n.self, sender.Identity)
	n.stopTimer(n.whoIsMasterTimer, "WhoIsMaster")
	n.startTimer(n.waitForMasterTimer, "WaitForMaster")
}

func (n *Node) onWhoIsMasterTimeout() {
	if n.state != WithoutMaster {
		return
	}
	n.becomeMaster()
}

func (n *Node) onWaitForMasterTimeout() {
	if n.state != WithoutMaster {
		return
	}
	logger.LogInfo("Election", "Node %s: No master appeared, asking again", n.self)
	n.broadcast(message.WhoIsMaster)
	n.startTimer(n.whoIsMasterTimer, "WhoIsMaster")
}

func (n *Node) onMonitoringMasterTimeout() {
	if n.state != Slave {
		return
	}
	logger.LogWarn("Election", "Node %s: Master %s is silent, starting election", n.self, n.master.Identity)
	n.becomeWithoutMaster()
}

func (n *Node) onHeartbeat() {
	if n.state != Master {
		return
	}
	n.broadcast(message.IAmMaster)
}

func (n *Node) becomeWithoutMaster() {
	n.leaveRole()
	n.state = WithoutMaster
	n.master = NodeDescriptor{}
	logger.LogInfo("Election", "Node %s: Became WithoutMaster", n.self)

	n.broadcast(message.WhoIsMaster)
	n.startTimer(n.whoIsMasterTimer, "WhoIsMaster")
	n.notifyStateChange()
}

func (n *Node) becomeMaster() {
	n.leaveRole()
	n.state = Master
	n.master = NodeDescriptor{}
	n.responses = n.responses[:0]
	logger.LogInfo("Election", "Node %s: I am now the MASTER", n.self)

	n.broadcast(message.IAmMaster)
	n.startTimer(n.heartbeatTimer, "Heartbeat")
	n.startTimer(n.controlRequestTimer, "ControlRequest")
	n.notifyStateChange()
}

func (n *Node) becomeSlave(master NodeDescriptor) {
	n.leaveRole()
	n.state = Slave
	n.master = master
	logger.LogInfo("Election", "Node %s: Became SLAVE of %s (%s)", n.self, master.Identity, master.Addr)

	n.startTimer(n.monitoringMasterTimer, "MonitoringMaster")
	n.notifyStateChange()
}

// leaveRole disarms every timer that belongs to the current state.
func (n *Node) leaveRole() {
	switch n.state {
	case WithoutMaster:
		n.stopTimer(n.whoIsMasterTimer, "WhoIsMaster")
		n.stopTimer(n.waitForMasterTimer, "WaitForMaster")
	case Slave:
		n.stopTimer(n.monitoringMasterTimer, "MonitoringMaster")
	case Master:
		n.stopTimer(n.heartbeatTimer, "Heartbeat")
		n.stopTimer(n.controlRequestTimer, "ControlRequest")
		n.stopTimer(n.controlWaitResponseTimer, "ControlWaitResponse")
		n.responses = n.responses[:0]
	}
}

func (n *Node) allTimers() []timers.Handle {
	return []timers.Handle{
		n.whoIsMasterTimer,
		n.waitForMasterTimer,
		n.monitoringMasterTimer,
		n.heartbeatTimer,
		n.controlRequestTimer,
		n.controlWaitResponseTimer,
	}
}

func (n *Node) startTimer(h timers.Handle, name string) {
	if err := n.timers.Start(h); err != nil {
		logger.LogError("Election", "Node %s: Failed to start %s timer: %v", n.self, name, err)
	}
}

func (n *Node) stopTimer(h timers.Handle, name string) {
	if err := n.timers.Stop(h); err != nil {
		logger.LogError("Election", "Node %s: Failed to stop %s timer: %v", n.self, name, err)
	}
}

func (n *Node) notifyStateChange() {
	n.observer.OnStateChange(n.Snapshot())
}

// A failed send is reported and otherwise ignored: periodic heartbeats and
// timeouts recover from a lost datagram.
func (n *Node) broadcast(msgType message.MessageType) {
	n.broadcastMessage(message.NewMessage(msgType, n.self))
}

func (n *Node) broadcastMessage(msg *message.Message) {
	size, err := message.Encode(n.sendBuf[:], msg)
	if err != nil {
		logger.LogError("Election", "Node %s: Failed to encode %s: %v", n.self, msg.Type, err)
		return
	}
	if err := n.transport.SendBroadcast(n.sendBuf[:size]); err != nil {
		logger.LogError("Election", "Node %s: Failed to broadcast %s: %v", n.self, msg.Type, err)
	}
}

func (n *Node) unicast(addr *net.UDPAddr, msg *message.Message) {
	size, err := message.Encode(n.sendBuf[:], msg)
	if err != nil {
		logger.LogError("Election", "Node %s: Failed to encode %s: %v", n.self, msg.Type, err)
		return
	}
	if err := n.transport.SendUnicast(addr, n.sendBuf[:size]); err != nil {
		logger.LogError("Election", "Node %s: Failed to send %s to %s: %v", n.self, msg.Type, addr, err)
	}
}
