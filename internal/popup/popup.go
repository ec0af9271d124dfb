package popup

import (
	"context"
	"errors"
	"time"

	"github.com/apideck-libraries/vault-core-sub000/pkg/logging"
)

// DefaultPollInterval is how often the launcher checks whether the popup
// has been closed. Browsers offer no cross-origin close event, so polling
// is the only detection available to the opener.
const DefaultPollInterval = 500 * time.Millisecond

// Outcome is the terminal result of a launched popup.
type Outcome int

const (
	// OutcomeClosed means the popup was detected closed. Closure says
	// nothing about why: user cancel, success redirect auto-close, or a
	// crash all look identical. Callers must re-fetch server-side state to
	// learn the true result.
	OutcomeClosed Outcome = iota

	// OutcomeCanceled means the owning context was torn down before the
	// popup closed.
	OutcomeCanceled
)

// String makes Outcome satisfy fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// WindowOptions are advisory UI hints for the detached browsing context.
// They are not security boundaries; hosts may ignore them.
type WindowOptions struct {
	Width        int
	Height       int
	HideLocation bool
}

// DefaultWindowOptions is the fixed geometry used for authorization popups.
var DefaultWindowOptions = WindowOptions{Width: 600, Height: 800, HideLocation: true}

// Handle is a detached browsing context owned by the launcher for the
// duration of an attempt. The launcher only ever asks whether it is closed;
// it cannot and must not read the popup's location or content.
type Handle interface {
	// Closed reports whether the browsing context has gone away.
	Closed() bool

	// Close tears the browsing context down, if the host supports that.
	Close() error
}

// Opener creates detached browsing contexts. The embedding host supplies
// one (a webview window, a helper process, the system browser).
type Opener interface {
	Open(url string, opts WindowOptions) (Handle, error)
}

// ErrNoOpener is returned when a launcher without an opener is asked to
// open a popup.
var ErrNoOpener = errors.New("popup: no opener configured")

// Launcher opens authorization popups and watches them for closure.
type Launcher struct {
	opener   Opener
	interval time.Duration
	options  WindowOptions
}

// NewLauncher creates a launcher. A non-positive interval selects
// DefaultPollInterval.
func NewLauncher(opener Opener, interval time.Duration) *Launcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Launcher{opener: opener, interval: interval, options: DefaultWindowOptions}
}

// Attempt is one in-flight popup. Done resolves exactly once with the
// terminal outcome.
type Attempt struct {
	handle Handle
	done   chan Outcome
}

// Done returns the channel carrying the attempt's terminal outcome.
func (a *Attempt) Done() <-chan Outcome {
	return a.done
}

// Launch opens url in a new browsing context and arms the closed-state
// poller. The poller stops on the first terminal outcome or when ctx is
// cancelled; either way no timer is left running.
func (l *Launcher) Launch(ctx context.Context, url string) (*Attempt, error) {
	if l.opener == nil {
		return nil, ErrNoOpener
	}

	handle, err := l.opener.Open(url, l.options)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		handle: handle,
		done:   make(chan Outcome, 1),
	}

	go l.watch(ctx, attempt)
	return attempt, nil
}

// watch polls the popup handle until it closes or the context ends.
func (l *Launcher) watch(ctx context.Context, a *Attempt) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if a.handle.Closed() {
				logging.Debug("Popup", "Popup closed, resolving attempt")
				a.done <- OutcomeClosed
				return
			}
		case <-ctx.Done():
			_ = a.handle.Close()
			a.done <- OutcomeCanceled
			return
		}
	}
}
