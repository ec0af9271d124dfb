package popup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeHandle is a controllable browsing context for launcher tests.
type fakeHandle struct {
	mu       sync.Mutex
	closed   bool
	closeErr error
	closes   int
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	h.closed = true
	return h.closeErr
}

func (h *fakeHandle) setClosed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

type fakeOpener struct {
	mu      sync.Mutex
	handle  *fakeHandle
	err     error
	opens   int
	lastURL string
	lastOpt WindowOptions
}

func (o *fakeOpener) Open(url string, opts WindowOptions) (Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	o.lastURL = url
	o.lastOpt = opts
	if o.err != nil {
		return nil, o.err
	}
	return o.handle, nil
}

func TestLauncher_ResolvesClosedWhenPopupCloses(t *testing.T) {
	handle := &fakeHandle{}
	opener := &fakeOpener{handle: handle}
	l := NewLauncher(opener, time.Millisecond)

	attempt, err := l.Launch(context.Background(), "https://auth.example.com/authorize")
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	handle.setClosed()

	select {
	case outcome := <-attempt.Done():
		if outcome != OutcomeClosed {
			t.Errorf("Outcome = %v, want closed", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("Attempt never resolved")
	}
}

func TestLauncher_CancelClosesPopup(t *testing.T) {
	handle := &fakeHandle{}
	opener := &fakeOpener{handle: handle}
	l := NewLauncher(opener, time.Hour) // the ticker must never fire

	ctx, cancel := context.WithCancel(context.Background())
	attempt, err := l.Launch(ctx, "https://auth.example.com/authorize")
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	cancel()

	select {
	case outcome := <-attempt.Done():
		if outcome != OutcomeCanceled {
			t.Errorf("Outcome = %v, want canceled", outcome)
		}
	case <-time.After(time.Second):
		t.Fatal("Attempt never resolved after cancel")
	}

	if !handle.Closed() {
		t.Error("Cancellation should close the popup")
	}
}

func TestLauncher_NoOpener(t *testing.T) {
	l := NewLauncher(nil, 0)
	if _, err := l.Launch(context.Background(), "https://example.com"); !errors.Is(err, ErrNoOpener) {
		t.Errorf("Expected ErrNoOpener, got %v", err)
	}
}

func TestLauncher_OpenFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("window blocked")}
	l := NewLauncher(opener, time.Millisecond)

	if _, err := l.Launch(context.Background(), "https://example.com"); err == nil {
		t.Error("Open failure should propagate")
	}
}

func TestLauncher_PassesURLAndOptions(t *testing.T) {
	opener := &fakeOpener{handle: &fakeHandle{closed: true}}
	l := NewLauncher(opener, time.Millisecond)

	attempt, err := l.Launch(context.Background(), "https://auth.example.com/authorize?state=abc")
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	<-attempt.Done()

	if opener.lastURL != "https://auth.example.com/authorize?state=abc" {
		t.Errorf("Opened URL = %q", opener.lastURL)
	}
	if opener.lastOpt != DefaultWindowOptions {
		t.Errorf("Window options = %+v, want defaults", opener.lastOpt)
	}
	if opener.opens != 1 {
		t.Errorf("Opened %d windows, want 1", opener.opens)
	}
}

func TestNewLauncher_DefaultsInterval(t *testing.T) {
	l := NewLauncher(&fakeOpener{}, 0)
	if l.interval != DefaultPollInterval {
		t.Errorf("Interval = %v, want %v", l.interval, DefaultPollInterval)
	}
	l = NewLauncher(&fakeOpener{}, -time.Second)
	if l.interval != DefaultPollInterval {
		t.Errorf("Negative interval should select the default")
	}
}

func TestOutcome_String(t *testing.T) {
	if OutcomeClosed.String() != "closed" || OutcomeCanceled.String() != "canceled" {
		t.Error("Unexpected outcome strings")
	}
	if Outcome(99).String() != "unknown" {
		t.Error("Out-of-range outcome should stringify as unknown")
	}
}
