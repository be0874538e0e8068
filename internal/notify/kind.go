package notify

import "fmt"

// Kind is the closed set of events carried by the event channel.
type Kind int

const (
	Connected Kind = iota
	JoinChat
	NewChat
	MessageReceived
	MessageDeleted
	GroupUpdated
	LeftChat
	Typing
	StopTyping
	SocketError
	numKinds
)

var kindNames = [numKinds]string{
	Connected:       "connected",
	JoinChat:        "joinChat",
	NewChat:         "newChat",
	MessageReceived: "messageReceived",
	MessageDeleted:  "messageDeleted",
	GroupUpdated:    "groupUpdated",
	LeftChat:        "leftChat",
	Typing:          "typing",
	StopTyping:      "stopTyping",
	SocketError:     "socketError",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || k >= numKinds {
		return nil, fmt.Errorf("notify: unknown event kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("notify: unknown event %q", name)
}

// ClientOriginated reports whether clients may send this kind.
func (k Kind) ClientOriginated() bool {
	switch k {
	case JoinChat, Typing, StopTyping:
		return true
	default:
		return false
	}
}
