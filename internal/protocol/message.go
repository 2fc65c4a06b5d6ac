package protocol

// MessageKind classifies a normalized inbound event.
type MessageKind uint8

const (
	KindChat MessageKind = iota
	KindReply
	KindError
	KindFarewell
)

func (k MessageKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindReply:
		return "reply"
	case KindError:
		return "error"
	case KindFarewell:
		return "farewell"
	default:
		return "unknown"
	}
}

// NormalizedMessage is the single internal representation both transports
// converge on. Once constructed, transport origin is irrelevant downstream.
type NormalizedMessage struct {
	Kind    MessageKind
	Content string
	Sender  string // set for Chat and Error frames
	Success bool   // meaningful for Reply frames only
}

// DefaultChannel is the channel the server places a client into after a
// successful authentication.
const DefaultChannel = "default"
