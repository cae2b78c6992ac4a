package identity

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
)

const HardwareAddrSize = 6

// ErrNotFound is returned when no interface can provide a hardware address.
var ErrNotFound = errors.New("identity: no usable network interface")

// NodeIdentity identifies a node on the LAN. Identities are totally ordered:
// hardware address first, then process id. The lower identity has priority.
type NodeIdentity struct {
	HardwareAddr [HardwareAddrSize]byte
	ProcessID    uint32
}

func New(hw net.HardwareAddr, pid uint32) (NodeIdentity, error) {
	if len(hw) != HardwareAddrSize {
		return NodeIdentity{}, fmt.Errorf("invalid hardware address length %d, expected %d", len(hw), HardwareAddrSize)
	}
	var id NodeIdentity
	copy(id.HardwareAddr[:], hw)
	id.ProcessID = pid
	return id, nil
}

// Compare returns -1 if id sorts before other, 1 if after and 0 if equal.
func (id NodeIdentity) Compare(other NodeIdentity) int {
	if c := bytes.Compare(id.HardwareAddr[:], other.HardwareAddr[:]); c != 0 {
		return c
	}
	if id.ProcessID < other.ProcessID {
		return -1
	}
	if id.ProcessID > other.ProcessID {
		return 1
	}
	return 0
}

// Outranks reports whether id wins a contest against other.
func (id NodeIdentity) Outranks(other NodeIdentity) bool {
	return id.Compare(other) < 0
}

func (id NodeIdentity) Equal(other NodeIdentity) bool {
	return id == other
}

func (id NodeIdentity) String() string {
	return fmt.Sprintf("%s/%d", net.HardwareAddr(id.HardwareAddr[:]).String(), id.ProcessID)
}

// Local builds the identity of this process from the first usable Ethernet
// interface and the process id.
func Local() (NodeIdentity, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return NodeIdentity{}, fmt.Errorf("failed to list interfaces: %w", err)
	}

	hw, ok := pickHardwareAddr(ifaces)
	if !ok {
		return NodeIdentity{}, ErrNotFound
	}

	return New(hw, uint32(os.Getpid()))
}

func pickHardwareAddr(ifaces []net.Interface) (net.HardwareAddr, bool) {
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(ifi.HardwareAddr) != HardwareAddrSize {
			continue
		}
		if isZero(ifi.HardwareAddr) {
			continue
		}
		return ifi.HardwareAddr, true
	}
	return nil, false
}

func isZero(hw net.HardwareAddr) bool {
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return true
}
