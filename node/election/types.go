package election

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lanmaster/lanmaster/protocol/identity"
)

// ErrResourceExhausted is returned when a control response arrives and the
// response buffer is already full. The response is dropped.
var ErrResourceExhausted = errors.New("response buffer full")

type State int

const (
	WithoutMaster State = iota
	Master
	Slave
)

func (s State) String() string {
	switch s {
	case WithoutMaster:
		return "WithoutMaster"
	case Master:
		return "Master"
	case Slave:
		return "Slave"
	default:
		return "Unknown"
	}
}

// NodeDescriptor is a peer as seen in one inbound datagram.
type NodeDescriptor struct {
	Addr     *net.UDPAddr
	Identity identity.NodeIdentity
}

// Transport sends encoded messages. Sends are fire-and-forget.
type Transport interface {
	SendUnicast(addr *net.UDPAddr, data []byte) error
	SendBroadcast(data []byte) error
}

// Sensor supplies local readings and renders control commands.
type Sensor interface {
	Readings() (luminosity, temperature int32)
	Apply(brightness int32, text string)
}

// Observer is told about role changes and finished control rounds. It is
// called on the main goroutine and must not block.
type Observer interface {
	OnStateChange(Snapshot)
	OnControlRound(Round)
}

type Snapshot struct {
	Identity   identity.NodeIdentity
	State      State
	HasMaster  bool
	Master     identity.NodeIdentity
	MasterAddr string
}

type Round struct {
	ID              uuid.UUID
	Responses       int
	MeanLuminosity  int32
	MeanTemperature int32
	Brightness      int32
	Text            string
}

type Config struct {
	WhoIsMasterTimeout         time.Duration
	WaitForMasterTimeout       time.Duration
	MonitoringMasterTimeout    time.Duration
	HeartbeatInterval          time.Duration
	ControlRequestInterval     time.Duration
	ControlWaitResponseTimeout time.Duration
	ResponseBufferSize         int
}

func DefaultConfig() Config {
	return Config{
		WhoIsMasterTimeout:         2 * time.Second,
		WaitForMasterTimeout:       5 * time.Second,
		MonitoringMasterTimeout:    3500 * time.Millisecond,
		HeartbeatInterval:          time.Second,
		ControlRequestInterval:     5 * time.Second,
		ControlWaitResponseTimeout: time.Second,
		ResponseBufferSize:         16,
	}
}

type noopObserver struct{}

func (noopObserver) OnStateChange(Snapshot) {}
func (noopObserver) OnControlRound(Round)   {}
