package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lanmaster/lanmaster/node/election"
	"github.com/lanmaster/lanmaster/node/sensor"
	"github.com/lanmaster/lanmaster/protocol/identity"
	"github.com/lanmaster/lanmaster/shared/health_server"
	"github.com/lanmaster/lanmaster/shared/logger"
	"github.com/lanmaster/lanmaster/shared/middleware"
	"github.com/lanmaster/lanmaster/shared/middleware/exchange"
	"github.com/lanmaster/lanmaster/shared/network"
	"github.com/lanmaster/lanmaster/shared/timers"
)

// Node wires the election to the UDP transport, the timer service and the
// optional status server and event publisher.
type Node struct {
	config       *NodeConfig
	instanceID   uuid.UUID
	self         identity.NodeIdentity
	transport    *network.Transport
	timers       *timers.Service
	election     *election.Node
	sensor       *sensor.Simulated
	healthServer *health_server.HealthServer
	publisher    *exchange.Publisher
	lastRound    *health_server.RoundStatus
}

func NewNode(config *NodeConfig) (*Node, error) {
	self, err := identity.Local()
	if err != nil {
		return nil, fmt.Errorf("failed to determine node identity: %w", err)
	}

	transport, err := network.New(network.Config{
		Port:          config.Port,
		BroadcastAddr: config.BroadcastAddr,
	})
	if err != nil {
		return nil, err
	}

	seed := config.SensorSeed
	if seed == 0 {
		seed = time.Now().UnixNano() ^ int64(self.ProcessID)
	}

	n := &Node{
		config:     config,
		instanceID: uuid.New(),
		self:       self,
		transport:  transport,
		timers:     timers.New(timers.RuntimeClock{}, timers.WithNotify(transport.Interrupt)),
		sensor:     sensor.NewSimulated(seed),
	}

	if config.HealthEnabled() {
		n.healthServer = health_server.NewHealthServer(config.HealthPort)
	}

	if config.EventsURL != "" {
		publisher, err := exchange.NewPublisher(
			&middleware.ConnectionConfig{URL: config.EventsURL},
			config.EventsExchange,
			exchange.DefaultBufferSize,
		)
		if err != nil {
			logger.LogWarn("Node", "Event publishing disabled: %v", err)
		} else {
			n.publisher = publisher
		}
	}

	n.election, err = election.NewNode(config.Election, self, n.timers, transport, n.sensor, n)
	if err != nil {
		n.closeSideServices()
		transport.Close()
		return nil, err
	}

	return n, nil
}

// Start brings up the status server. The election itself starts in Run.
func (n *Node) Start() error {
	logger.LogInfo("Node", "Starting node %s (instance %s)", n.self, n.instanceID)

	if n.healthServer != nil {
		if err := n.healthServer.Start(); err != nil {
			return err
		}
		n.healthServer.SetStatus(n.status(n.election.Snapshot()))
	}
	return nil
}

// Run drives the election until Stop. It must be called from one goroutine
// only; every election handler runs on it.
func (n *Node) Run() error {
	n.election.Start()

	err := n.transport.Run(n.timers.Pending, n.onDatagram, n.timers.DrainPending)
	if dropped := n.timers.Dropped(); dropped > 0 {
		logger.LogWarn("Node", "%d timer expiries were dropped", dropped)
	}
	return err
}

// Stop makes Run return. It is safe to call from a signal handler goroutine.
func (n *Node) Stop() {
	n.transport.Stop()
}

// Close releases everything NewNode acquired. Call it after Run returned.
func (n *Node) Close() error {
	var errs []error
	if err := n.election.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := n.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := n.closeSideServices(); err != nil {
		errs = append(errs, err)
	}
	logger.LogInfo("Node", "Node %s closed", n.self)
	return errors.Join(errs...)
}

func (n *Node) closeSideServices() error {
	if n.healthServer != nil {
		n.healthServer.Stop()
	}
	if n.publisher != nil {
		return n.publisher.Close()
	}
	return nil
}

func (n *Node) onDatagram(from *net.UDPAddr, data []byte) {
	if err := n.election.HandleDatagram(from, data); err != nil {
		logger.LogDebug("Node", "Datagram from %s not handled: %v", from, err)
	}
}

// OnStateChange implements election.Observer.
func (n *Node) OnStateChange(s election.Snapshot) {
	if n.healthServer != nil {
		n.healthServer.SetStatus(n.status(s))
	}
	if n.publisher != nil {
		e := n.event(exchange.EventRoleChanged)
		e.State = s.State.String()
		if s.HasMaster {
			e.Master = s.Master.String()
		}
		n.publisher.Publish(e)
	}
}

// OnControlRound implements election.Observer.
func (n *Node) OnControlRound(r election.Round) {
	n.lastRound = &health_server.RoundStatus{
		ID:          r.ID.String(),
		Responses:   r.Responses,
		Brightness:  r.Brightness,
		Text:        r.Text,
		CompletedAt: time.Now(),
	}
	if n.healthServer != nil {
		n.healthServer.SetStatus(n.status(n.election.Snapshot()))
	}
	if n.publisher != nil {
		e := n.event(exchange.EventControlRound)
		e.State = election.Master.String()
		e.Round = &exchange.RoundEvent{
			ID:              r.ID,
			Responses:       r.Responses,
			MeanLuminosity:  r.MeanLuminosity,
			MeanTemperature: r.MeanTemperature,
			Brightness:      r.Brightness,
			Text:            r.Text,
		}
		n.publisher.Publish(e)
	}
}

func (n *Node) event(t exchange.EventType) exchange.Event {
	return exchange.Event{
		Type:       t,
		InstanceID: n.instanceID,
		Identity:   n.self.String(),
		Timestamp:  time.Now().UTC(),
	}
}

func (n *Node) status(s election.Snapshot) health_server.Status {
	st := health_server.Status{
		Identity:  s.Identity.String(),
		State:     s.State.String(),
		LastRound: n.lastRound,
		UpdatedAt: time.Now(),
	}
	if s.HasMaster {
		st.Master = s.Master.String()
		st.MasterAddr = s.MasterAddr
	}
	return st
}
