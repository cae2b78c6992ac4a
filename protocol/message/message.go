package message

import (
	"errors"
	"fmt"

	"github.com/lanmaster/lanmaster/protocol/identity"
)

var (
	ErrTruncated      = errors.New("message truncated")
	ErrBufferTooSmall = errors.New("buffer too small for message")
	ErrUnknownType    = errors.New("unknown message type")
)

// Message is the decoded form of a datagram. Only the payload fields that
// belong to Type are meaningful.
type Message struct {
	Type   MessageType
	Sender identity.NodeIdentity

	// ControlResponse
	Luminosity  int32
	Temperature int32

	// ControlSet
	Brightness int32
	Text       string
}

func NewMessage(msgType MessageType, sender identity.NodeIdentity) *Message {
	return &Message{Type: msgType, Sender: sender}
}

func NewControlResponse(sender identity.NodeIdentity, luminosity, temperature int32) *Message {
	return &Message{
		Type:        ControlResponse,
		Sender:      sender,
		Luminosity:  luminosity,
		Temperature: temperature,
	}
}

func NewControlSet(sender identity.NodeIdentity, brightness int32, text string) *Message {
	return &Message{
		Type:       ControlSet,
		Sender:     sender,
		Brightness: brightness,
		Text:       text,
	}
}

// Size returns the encoded length of msg.
func (m *Message) Size() int {
	switch m.Type {
	case ControlResponse:
		return HeaderSize + LuminositySize + TemperatureSize
	case ControlSet:
		return HeaderSize + BrightnessSize + len(m.Text)
	default:
		return HeaderSize
	}
}

// Encode writes msg into buf and returns the number of bytes written.
func Encode(buf []byte, msg *Message) (int, error) {
	if !msg.Type.valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, msg.Type)
	}
	if len(buf) < msg.Size() {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, msg.Size(), len(buf))
	}

	w := writer{buf: buf}
	if err := w.putUint32(uint32(msg.Type)); err != nil {
		return 0, err
	}
	if err := w.putUint32(msg.Sender.ProcessID); err != nil {
		return 0, err
	}
	if err := w.putBytes(msg.Sender.HardwareAddr[:]); err != nil {
		return 0, err
	}

	switch msg.Type {
	case ControlResponse:
		if err := w.putUint32(uint32(msg.Luminosity)); err != nil {
			return 0, err
		}
		if err := w.putUint32(uint32(msg.Temperature)); err != nil {
			return 0, err
		}
	case ControlSet:
		if err := w.putUint32(uint32(msg.Brightness)); err != nil {
			return 0, err
		}
		if err := w.putBytes([]byte(msg.Text)); err != nil {
			return 0, err
		}
	}

	return w.offset, nil
}

// Marshal encodes msg into a freshly allocated buffer of at most MaxSize bytes.
func Marshal(msg *Message) ([]byte, error) {
	buf := make([]byte, MaxSize)
	n, err := Encode(buf, msg)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Decode parses a datagram. The payload layout is chosen by the type tag;
// anything after the fixed fields is the ControlSet text tail.
func Decode(data []byte) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrTruncated, len(data), HeaderSize)
	}

	r := reader{data: data}
	msg := &Message{}

	rawType, err := r.uint32()
	if err != nil {
		return nil, err
	}
	msg.Type = MessageType(rawType)
	if !msg.Type.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, rawType)
	}

	if msg.Sender.ProcessID, err = r.uint32(); err != nil {
		return nil, err
	}
	if err := r.bytes(msg.Sender.HardwareAddr[:]); err != nil {
		return nil, err
	}

	switch msg.Type {
	case ControlResponse:
		lum, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("%w: ControlResponse luminosity", err)
		}
		temp, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("%w: ControlResponse temperature", err)
		}
		msg.Luminosity = int32(lum)
		msg.Temperature = int32(temp)
	case ControlSet:
		brightness, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("%w: ControlSet brightness", err)
		}
		msg.Brightness = int32(brightness)
		msg.Text = string(r.rest())
	}

	return msg, nil
}
