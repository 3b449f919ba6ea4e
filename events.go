package serialplot

// EventKind discriminates the payload carried by an Event.
type EventKind int

const (
	EventStatusChanged EventKind = iota + 1
	EventChannelUpdated
	EventNonNumericAppended
)

func (k EventKind) String() string {
	switch k {
	case EventStatusChanged:
		return "status_changed"
	case EventChannelUpdated:
		return "channel_updated"
	case EventNonNumericAppended:
		return "non_numeric_appended"
	default:
		return "unknown"
	}
}

// StatusChanged carries the authoritative connection state.
type StatusChanged struct {
	State    State
	Message  string
	Severity Severity
}

// ChannelUpdated carries a fresh snapshot of one channel.
type ChannelUpdated struct {
	Key      ChannelKey
	Snapshot Snapshot
}

// NonNumericAppended carries the entry just added to the non-numeric log.
type NonNumericAppended struct {
	Entry Entry
}

// Event is what subscribers receive. Exactly one payload field is set,
// selected by Kind. Seq increases by one for every published event.
type Event struct {
	Seq  uint64
	Kind EventKind

	Status     StatusChanged
	Channel    ChannelUpdated
	NonNumeric NonNumericAppended
}

func statusEvent(s StatusChanged) Event {
	return Event{Kind: EventStatusChanged, Status: s}
}

func channelEvent(snap Snapshot) Event {
	return Event{Kind: EventChannelUpdated, Channel: ChannelUpdated{Key: snap.Key, Snapshot: snap}}
}

func nonNumericEvent(e Entry) Event {
	return Event{Kind: EventNonNumericAppended, NonNumeric: NonNumericAppended{Entry: e}}
}
