package outputs

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"synthmon/internal/models"
)

// recordingOutput counts writes and can be told to fail
type recordingOutput struct {
	name   string
	err    error
	mu     sync.Mutex
	events []*models.CheckEvent
}

func (r *recordingOutput) Write(event *models.CheckEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingOutput) Name() string {
	return r.name
}

func (r *recordingOutput) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcherFansOutToAllOutputs(t *testing.T) {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := &recordingOutput{name: "first"}
	second := &recordingOutput{name: "second"}
	d.RegisterOutput(first)
	d.RegisterOutput(second)

	event := snmpTestEvent("example", models.StatusSuccess, 1000)
	d.Dispatch(event)

	if first.count() != 1 {
		t.Errorf("Expected 1 event on first output, got %d", first.count())
	}
	if second.count() != 1 {
		t.Errorf("Expected 1 event on second output, got %d", second.count())
	}
}

func TestDispatcherFailingOutputDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)))

	failing := &recordingOutput{name: "failing", err: errors.New("write refused")}
	healthy := &recordingOutput{name: "healthy"}
	d.RegisterOutput(failing)
	d.RegisterOutput(healthy)

	for i := 0; i < 3; i++ {
		d.Dispatch(snmpTestEvent("example", models.StatusSuccess, 1000))
	}

	if healthy.count() != 3 {
		t.Errorf("Expected 3 events on healthy output, got %d", healthy.count())
	}
	if failing.count() != 3 {
		t.Errorf("Expected failing output to keep receiving events, got %d", failing.count())
	}
}

func TestDispatcherNoOutputs(t *testing.T) {
	d := NewDispatcher(nil)

	// Must not panic or block with nothing registered
	d.Dispatch(snmpTestEvent("example", models.StatusSuccess, 1000))
}
