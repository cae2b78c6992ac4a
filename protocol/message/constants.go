package message

import "github.com/lanmaster/lanmaster/protocol/identity"

type MessageType uint32

const (
	WhoIsMaster     MessageType = 0
	IAmMaster       MessageType = 1
	PleaseWait      MessageType = 2
	ControlRequest  MessageType = 3
	ControlResponse MessageType = 4
	ControlSet      MessageType = 5
)

const (
	TypeSize         = 4
	ProcessIDSize    = 4
	HardwareAddrSize = identity.HardwareAddrSize
	HeaderSize       = TypeSize + ProcessIDSize + HardwareAddrSize

	LuminositySize  = 4
	TemperatureSize = 4
	BrightnessSize  = 4

	// MaxSize keeps every message inside a single Ethernet-MTU UDP payload.
	MaxSize    = 1472
	MaxTextLen = MaxSize - HeaderSize - BrightnessSize
)

func (t MessageType) String() string {
	switch t {
	case WhoIsMaster:
		return "WhoIsMaster"
	case IAmMaster:
		return "IAmMaster"
	case PleaseWait:
		return "PleaseWait"
	case ControlRequest:
		return "ControlRequest"
	case ControlResponse:
		return "ControlResponse"
	case ControlSet:
		return "ControlSet"
	default:
		return "Unknown"
	}
}

func (t MessageType) valid() bool {
	return t <= ControlSet
}
