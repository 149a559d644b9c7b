package session

import (
	"fmt"
	"time"
)

type State int

const (
	StateConnecting State = iota
	StateConnected
	StateAwaitingHello
	StateListening
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Outcome int

const (
	Success Outcome = iota
	ConnectError
	ProtocolMismatch
	RecvError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ConnectError:
		return "connect_error"
	case ProtocolMismatch:
		return "protocol_mismatch"
	case RecvError:
		return "recv_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Outcomes lists every outcome, in declaration order.
var Outcomes = []Outcome{Success, ConnectError, ProtocolMismatch, RecvError}

// Ticket identifies one session within a run (all indexes are 1-based).
type Ticket struct {
	Round   int
	Client  int
	Request int
}

func (t Ticket) String() string {
	return fmt.Sprintf("[round %d][client %d][request %d]", t.Round, t.Client, t.Request)
}

// Result is produced exactly once per session.
type Result struct {
	Ticket
	RunID     string // stamped by the runner; empty outside a run
	Outcome   Outcome
	Messages  int
	Reached   State // StateClosed or StateFailed once Run returns
	FailedIn  State // stage that failed; meaningful only when Reached is StateFailed
	Elapsed   time.Duration
	Handshake time.Duration // dial start to hello reply; zero if never reached
	Err       error
}

// Timeouts bound each blocking step of a session.
type Timeouts struct {
	Connect   time.Duration
	Handshake time.Duration
	Poll      time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:   10 * time.Second,
		Handshake: 5 * time.Second,
		Poll:      1 * time.Second,
	}
}

// Identity is what a simulated device announces in its hello frame.
type Identity struct {
	DeviceID   string
	DeviceName string
	DeviceMAC  string
	Token      string
}

const (
	DefaultDeviceName = "wsoak test device"
	DefaultToken      = "your-token1"
	ListenText        = "你好"
)

// NewIdentity derives the hello identity from a device MAC.
func NewIdentity(mac string) Identity {
	return Identity{
		DeviceID:   mac,
		DeviceName: DefaultDeviceName,
		DeviceMAC:  mac,
		Token:      DefaultToken,
	}
}

type helloFrame struct {
	Type       string          `json:"type"`
	DeviceID   string          `json:"device_id"`
	DeviceName string          `json:"device_name"`
	DeviceMAC  string          `json:"device_mac"`
	Token      string          `json:"token"`
	Features   map[string]bool `json:"features"`
}

type listenFrame struct {
	Type  string `json:"type"`
	Mode  string `json:"mode"`
	State string `json:"state"`
	Text  string `json:"text"`
}

func newHello(id Identity) helloFrame {
	return helloFrame{
		Type:       "hello",
		DeviceID:   id.DeviceID,
		DeviceName: id.DeviceName,
		DeviceMAC:  id.DeviceMAC,
		Token:      id.Token,
		Features:   map[string]bool{"mcp": true},
	}
}

func newListen() listenFrame {
	return listenFrame{Type: "listen", Mode: "manual", State: "detect", Text: ListenText}
}
