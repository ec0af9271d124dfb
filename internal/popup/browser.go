package popup

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ExecOpener opens popups by spawning a browser process. When Command is
// set (e.g. {"chromium", "--app=%s"}) the spawned process owns the window
// and its exit maps directly onto window closure. When Command is empty the
// platform launcher (xdg-open/open/start) is used; those hand off to an
// existing browser and exit immediately, so closure detection degrades to
// "opened and handed off" and callers should rely on the message path or an
// explicit refresh instead.
type ExecOpener struct {
	// Command is the argv template for opening a URL. A "%s" placeholder
	// receives the URL; if absent the URL is appended as the last argument.
	Command []string
}

// Open spawns the browser process for url.
func (o *ExecOpener) Open(url string, opts WindowOptions) (Handle, error) {
	argv := o.command(url, opts)
	if len(argv) == 0 {
		return nil, fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to open browser: %w", err)
	}

	h := &execHandle{cmd: cmd}
	go h.wait()
	return h, nil
}

// command builds the argv for url, from the configured template or the
// platform default.
func (o *ExecOpener) command(url string, opts WindowOptions) []string {
	if len(o.Command) > 0 {
		argv := make([]string, len(o.Command))
		substituted := false
		for i, arg := range o.Command {
			if strings.Contains(arg, "%s") {
				argv[i] = fmt.Sprintf(arg, url)
				substituted = true
			} else {
				argv[i] = arg
			}
		}
		if !substituted {
			argv = append(argv, url)
		}
		return argv
	}

	switch runtime.GOOS {
	case "linux":
		return []string{"xdg-open", url}
	case "darwin":
		return []string{"open", url}
	case "windows":
		return []string{"cmd", "/c", "start", url}
	default:
		return nil
	}
}

// execHandle tracks the spawned browser process.
type execHandle struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	exited bool
}

func (h *execHandle) wait() {
	_ = h.cmd.Wait()
	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
}

func (h *execHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

func (h *execHandle) Close() error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
