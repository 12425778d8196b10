package logger

import "testing"

func TestInit(t *testing.T) {
	l := New()
	if l.Log == nil {
		t.Fatal("New() returned nil zap logger")
	}

	for _, level := range []string{"debug", "Info", "WARN", "error"} {
		if err := l.Init(level); err != nil {
			t.Errorf("Init(%q) error = %v", level, err)
		}
	}

	if err := l.Init("loud"); err == nil {
		t.Error("Init(\"loud\") expected error, got nil")
	}
}
