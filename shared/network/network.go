package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/lanmaster/lanmaster/shared/logger"
)

const (
	DefaultBroadcastAddr  = "255.255.255.255"
	DefaultReadBufferSize = 8192
)

var ErrTransportFailure = errors.New("transport failure")

type Config struct {
	Port           int
	BroadcastAddr  string
	ReadBufferSize int
}

// DatagramHandler receives every inbound datagram. data is only valid for
// the duration of the call.
type DatagramHandler func(from *net.UDPAddr, data []byte)

// Transport is a broadcast-capable UDP socket with a receive loop that can be
// woken by timer expiries.
type Transport struct {
	conn      net.PacketConn
	pc        *ipv4.PacketConn
	broadcast *net.UDPAddr
	buf       []byte
	stopped   atomic.Bool
}

func New(cfg Config) (*Transport, error) {
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = DefaultBroadcastAddr
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}

	lc := net.ListenConfig{Control: setSocketOptions}
	conn, err := lc.ListenPacket(context.Background(), "udp4", ":"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to bind udp port %d: %v", ErrTransportFailure, cfg.Port, err)
	}

	port := cfg.Port
	if port == 0 {
		port = conn.LocalAddr().(*net.UDPAddr).Port
	}
	broadcast, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(cfg.BroadcastAddr, strconv.Itoa(port)))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: invalid broadcast address %q: %v", ErrTransportFailure, cfg.BroadcastAddr, err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
		logger.LogWarn("Network", "Destination control messages unavailable: %v", err)
	}

	logger.LogInfo("Network", "Listening on %s, broadcasting to %s", conn.LocalAddr(), broadcast)

	return &Transport{
		conn:      conn,
		pc:        pc,
		broadcast: broadcast,
		buf:       make([]byte, cfg.ReadBufferSize),
	}, nil
}

func setSocketOptions(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

func (t *Transport) SendUnicast(addr *net.UDPAddr, data []byte) error {
	if _, err := t.pc.WriteTo(data, nil, addr); err != nil {
		return fmt.Errorf("%w: send to %s: %v", ErrTransportFailure, addr, err)
	}
	return nil
}

func (t *Transport) SendBroadcast(data []byte) error {
	if _, err := t.pc.WriteTo(data, nil, t.broadcast); err != nil {
		return fmt.Errorf("%w: broadcast to %s: %v", ErrTransportFailure, t.broadcast, err)
	}
	return nil
}

// Interrupt wakes a blocked Run. It is safe to call from any goroutine.
func (t *Transport) Interrupt() {
	_ = t.pc.SetReadDeadline(time.Now())
}

// Stop makes Run return after its current wake.
func (t *Transport) Stop() {
	t.stopped.Store(true)
	t.Interrupt()
}

func (t *Transport) Close() error {
	return t.conn.Close()
}

// Run blocks until Stop. Every wake, whether caused by a datagram or by an
// Interrupt, calls onTimerTick first and then onDatagram when data arrived.
//
// Persistent read errors are paced by readErrorThrottle.
//
// pending reports queued timer expiries. It is checked after the read
// deadline is cleared and before blocking; an expiry queued after the check
// has its Interrupt land on the read that follows, so none is lost.
func (t *Transport) Run(pending func() int, onDatagram DatagramHandler, onTimerTick func()) error {
	var throttle readErrorThrottle
	for {
		if err := t.pc.SetReadDeadline(time.Time{}); err != nil {
			return fmt.Errorf("%w: failed to reset read deadline: %v", ErrTransportFailure, err)
		}
		if t.stopped.Load() {
			return nil
		}
		if pending != nil && pending() > 0 {
			onTimerTick()
			continue
		}

		n, cm, src, err := t.pc.ReadFrom(t.buf)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
			case errors.Is(err, net.ErrClosed):
				return fmt.Errorf("%w: socket closed: %v", ErrTransportFailure, err)
			default:
				log, pause := throttle.failed()
				if log {
					logger.LogError("Network", "Receive failed (%d in a row, pausing %s): %v", throttle.consecutive, pause, err)
				}
				onTimerTick()
				time.Sleep(pause)
				continue
			}
			onTimerTick()
			continue
		}
		if failures := throttle.succeeded(); failures > 0 {
			logger.LogInfo("Network", "Receive recovered after %d failures", failures)
		}

		onTimerTick()

		from, ok := src.(*net.UDPAddr)
		if !ok {
			logger.LogWarn("Network", "Dropping datagram from non-UDP source %v", src)
			continue
		}
		if cm != nil && cm.Dst != nil {
			logger.LogDebug("Network", "Datagram of %d bytes from %s to %s", n, from, cm.Dst)
		}
		onDatagram(from, t.buf[:n])
	}
}
