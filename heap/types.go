package heap

// Handle names a slot in a Table.
type Handle uint32

// Reserved handles.
const (
	HandleUndefined Handle = 0
	HandleNull      Handle = 1
	HandleTrue      Handle = 2
	HandleFalse     Handle = 3
)

// DefaultReserved is the number of permanent slots: the four constants.
const DefaultReserved = 4

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// NullType is the type of Null.
type NullType struct{}

func (UndefinedType) String() string { return "undefined" }
func (NullType) String() string      { return "null" }

var (
	// Undefined is the host value stored at HandleUndefined.
	Undefined = UndefinedType{}
	// Null is the host value stored at HandleNull.
	Null = NullType{}
)

// IsUndefined reports whether v is the undefined value. A nil interface
// counts as undefined.
func IsUndefined(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(UndefinedType)
	return ok
}

// IsNull reports whether v is the null value.
func IsNull(v any) bool {
	_, ok := v.(NullType)
	return ok
}

// EventType identifies a table lifecycle notification.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventDropped
)

func (e EventType) String() string {
	switch e {
	case EventAllocated:
		return "allocated"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a slot lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about slot lifecycle events.
type Observer interface {
	OnHeapEvent(Event)
}

// Config configures a Table.
type Config struct {
	// Reserved is the number of permanent slots. Values below
	// DefaultReserved are raised to it.
	Reserved uint32
}
