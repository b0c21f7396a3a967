// Package outputs contains the secondary consumers of check results:
// structured logging, Prometheus metrics, Elasticsearch indexing and the
// SNMP agent. Outputs observe results that the recorder has already
// handled; none of them participate in persistence.
package outputs

import (
	"log/slog"
	"sync"

	"synthmon/internal/models"
)

// Dispatcher distributes check events to all output modules
type Dispatcher struct {
	outputs []Output
	log     *slog.Logger
	mu      sync.RWMutex
}

// Output is an interface for check event output modules
type Output interface {
	// Write sends a check event to the output
	Write(event *models.CheckEvent) error

	// Name returns the output module name
	Name() string
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		outputs: make([]Output, 0),
		log:     log,
	}
}

// RegisterOutput adds an output module to the dispatcher
func (d *Dispatcher) RegisterOutput(output Output) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs = append(d.outputs, output)
}

// Dispatch sends an event to all registered outputs.
// Outputs are called in parallel; a failing output is logged but never
// blocks or fails the others.
func (d *Dispatcher) Dispatch(event *models.CheckEvent) {
	d.mu.RLock()
	outputs := make([]Output, len(d.outputs))
	copy(outputs, d.outputs)
	d.mu.RUnlock()

	// Fan out to all outputs in parallel
	var wg sync.WaitGroup
	for _, output := range outputs {
		wg.Add(1)
		go func(o Output) {
			defer wg.Done()
			if err := o.Write(event); err != nil {
				d.log.Error("Output write failed",
					"output", o.Name(),
					"monitor", event.Monitor.Name,
					"error", err)
			}
		}(output)
	}

	// Wait for all outputs to complete
	wg.Wait()
}
