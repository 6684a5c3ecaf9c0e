// Package publish carries the sensor outputs to the vessel network: a hub
// keeping the latest value per path and sinks forwarding every update.
package publish

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/observable"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Reading is one published value
type Reading struct {
	Path  string    `json:"path"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Sink receives every reading the hub publishes. Publish must not block.
type Sink interface {
	Publish(r Reading)
}

// Hub keeps the latest reading of every bound path, in binding order
type Hub struct {
	mu     sync.RWMutex
	latest *orderedmap.OrderedMap[string, Reading]
	sinks  []Sink
	logger *logrus.Logger
	now    func() time.Time
}

// NewHub creates an empty hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		latest: orderedmap.New[string, Reading](),
		logger: logger,
		now:    time.Now,
	}
}

// AddSink registers s for every subsequent reading
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// Bind publishes every value of src under path
func (h *Hub) Bind(path string, src observable.Producer[float64]) {
	h.mu.Lock()
	if _, ok := h.latest.Get(path); !ok {
		h.latest.Set(path, Reading{Path: path})
	}
	h.mu.Unlock()

	h.logger.WithField("path", path).Debug("Output bound")
	src.Connect(func(v float64) {
		h.Set(path, v)
	})
}

// Set records v under path and forwards it to every sink
func (h *Hub) Set(path string, v float64) {
	r := Reading{Path: path, Value: v, Time: h.now()}

	h.mu.Lock()
	h.latest.Set(path, r)
	sinks := h.sinks
	h.mu.Unlock()

	for _, s := range sinks {
		s.Publish(r)
	}
}

// Snapshot returns the latest reading of every path, in binding order.
// A bound path without updates has a zero Time.
func (h *Hub) Snapshot() []Reading {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Reading, 0, h.latest.Len())
	for pair := h.latest.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// LogSink writes every reading to the logger at Debug
type LogSink struct {
	Logger *logrus.Logger
}

// Publish implements Sink
func (s LogSink) Publish(r Reading) {
	s.Logger.WithFields(logrus.Fields{
		"path":  r.Path,
		"value": r.Value,
	}).Debug("Output updated")
}
