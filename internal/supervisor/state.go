package supervisor

import "fmt"

// Mode selects how a bot receives updates. It is fixed at construction.
type Mode string

const (
	ModePolling  Mode = "polling"
	ModeWebhook  Mode = "webhook"
	ModeSendOnly Mode = "send_only"
)

// ParseMode accepts the configured spelling of a mode. The empty string
// selects polling.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePolling:
		return ModePolling, nil
	case ModeWebhook:
		return ModeWebhook, nil
	case ModeSendOnly, "sendonly", "send-only":
		return ModeSendOnly, nil
	}
	return "", fmt.Errorf("supervisor: unknown mode %q", s)
}

// State is the connection state of one bot instance.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
