package popup

import (
	"reflect"
	"testing"
)

func TestExecOpener_CommandTemplateSubstitution(t *testing.T) {
	o := &ExecOpener{Command: []string{"chromium", "--app=%s", "--window-size=600,800"}}

	argv := o.command("https://auth.example.com/authorize", DefaultWindowOptions)
	want := []string{"chromium", "--app=https://auth.example.com/authorize", "--window-size=600,800"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("command() = %v, want %v", argv, want)
	}
}

func TestExecOpener_CommandWithoutPlaceholder(t *testing.T) {
	o := &ExecOpener{Command: []string{"firefox", "--new-window"}}

	argv := o.command("https://example.com", DefaultWindowOptions)
	want := []string{"firefox", "--new-window", "https://example.com"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("command() = %v, want %v", argv, want)
	}
}

func TestExecOpener_PlatformDefault(t *testing.T) {
	o := &ExecOpener{}

	argv := o.command("https://example.com", DefaultWindowOptions)
	if len(argv) == 0 {
		t.Skip("no platform launcher on this OS")
	}
	if argv[len(argv)-1] != "https://example.com" {
		t.Errorf("Platform launcher should receive the URL last, got %v", argv)
	}
}
