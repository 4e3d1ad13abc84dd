package bus

// InboundMessage is a request entering the runtime from a channel
// (live user input, heartbeat prompts, subagent announces).
type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	SessionKey string
	Metadata   map[string]string
}

// OutboundMessage is a response or delivery leaving the runtime
// toward a channel adapter.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
