package election

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lanmaster/lanmaster/protocol/message"
	"github.com/lanmaster/lanmaster/shared/logger"
)

// luminosityScale is the reading that maps to a fully dimmed display.
const luminosityScale = 1000

func (n *Node) onControlRequestTimeout() {
	if n.state != Master {
		return
	}
	n.responses = n.responses[:0]
	n.roundID = uuid.New()
	logger.LogDebug("Election", "Node %s: Control round %s started", n.self, n.roundID)

	n.broadcast(message.ControlRequest)
	n.startTimer(n.controlWaitResponseTimer, "ControlWaitResponse")
}

func (n *Node) onControlRequest(sender NodeDescriptor) {
	if n.state != Slave {
		return
	}
	luminosity, temperature := n.sensor.Readings()
	n.unicast(sender.Addr, message.NewControlResponse(n.self, luminosity, temperature))
}

func (n *Node) onControlResponse(sender NodeDescriptor, msg *message.Message) error {
	if n.state != Master {
		return nil
	}
	if len(n.responses) == cap(n.responses) {
		logger.LogWarn("Election", "Node %s: Dropping control response from %s, buffer holds %d", n.self, sender.Identity, cap(n.responses))
		return fmt.Errorf("%w: response from %s dropped", ErrResourceExhausted, sender.Identity)
	}
	n.responses = append(n.responses, reading{luminosity: msg.Luminosity, temperature: msg.Temperature})
	return nil
}

func (n *Node) onControlWaitResponseTimeout() {
	if n.state != Master {
		return
	}

	round := n.aggregate()
	n.responses = n.responses[:0]

	logger.LogInfo("Election", "Node %s: Control round %s: %d responses, brightness %d, %s",
		n.self, round.ID, round.Responses, round.Brightness, round.Text)

	n.broadcastMessage(message.NewControlSet(n.self, round.Brightness, round.Text))
	n.sensor.Apply(round.Brightness, round.Text)
	n.observer.OnControlRound(round)
}

func (n *Node) onControlSet(sender NodeDescriptor, msg *message.Message) {
	if n.state != Slave {
		return
	}
	n.sensor.Apply(msg.Brightness, msg.Text)
}

// aggregate averages the collected responses together with the master's own
// reading.
func (n *Node) aggregate() Round {
	luminosity, temperature := n.sensor.Readings()
	sumLum := int64(luminosity)
	sumTemp := int64(temperature)
	for _, r := range n.responses {
		sumLum += int64(r.luminosity)
		sumTemp += int64(r.temperature)
	}

	count := int64(len(n.responses) + 1)
	meanLum := int32(sumLum / count)
	meanTemp := int32(sumTemp / count)

	return Round{
		ID:              n.roundID,
		Responses:       len(n.responses),
		MeanLuminosity:  meanLum,
		MeanTemperature: meanTemp,
		Brightness:      brightnessFor(meanLum),
		Text:            fmt.Sprintf("avg_temp=%d nodes=%d", meanTemp, count),
	}
}

// brightnessFor maps ambient light to a display brightness percentage; a
// darker room gets a brighter display.
func brightnessFor(luminosity int32) int32 {
	b := 100 - int64(luminosity)*100/luminosityScale
	if b < 0 {
		return 0
	}
	if b > 100 {
		return 100
	}
	return int32(b)
}
