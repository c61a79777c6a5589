package logging

import "testing"

func TestNewLoggerWithService(t *testing.T) {
	logger := NewLoggerWithService("harbormaster")
	if logger == nil {
		t.Fatal("expected logger instance")
	}
}
