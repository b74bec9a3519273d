package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "warning", "error"} {
		if _, err := New(level); err != nil {
			t.Fatalf("level %q: %v", level, err)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestDebugEnablesVerbosity(t *testing.T) {
	log, err := New("debug")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !log.V(1).Enabled() {
		t.Fatalf("debug level must enable V(1)")
	}

	log, err = New("info")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if log.V(1).Enabled() {
		t.Fatalf("info level must not enable V(1)")
	}
}
