// Package notify carries user-facing notifications from the connection core
// to whatever renders them. The core never crashes on a failed operation;
// it converts the failure into a notification and leaves the cache alone.
package notify

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a single dismissable user-facing message.
type Notification struct {
	Level     Level
	ServiceID string
	Message   string
	// Detail optionally carries the provider-supplied description.
	Detail string
}

// Notifier receives notifications. Implementations must not block: the core
// raises notifications from its own goroutines.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to the Notifier interface.
type Func func(n Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard is a Notifier that drops everything.
var Discard Notifier = Func(func(Notification) {})

// Channel forwards notifications over a buffered channel for host UIs that
// poll. When the buffer is full the notification is dropped.
type Channel struct {
	ch chan Notification
}

// NewChannel creates a channel notifier with the given buffer size.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{ch: make(chan Notification, size)}
}

func (c *Channel) Notify(n Notification) {
	select {
	case c.ch <- n:
	default:
	}
}

// C returns the receive side of the channel.
func (c *Channel) C() <-chan Notification {
	return c.ch
}
