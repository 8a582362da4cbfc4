// Package attribute names the reported attributes of the sensor node and the
// sinks they are published to.
package attribute

import (
	"fmt"
	"sync"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
)

var log = logging.NewLogger("info")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	log = l
}

// Cluster ids follow the ZCL numbering the node reports under.
type Cluster uint16

const (
	PowerConfig      Cluster = 0x0001
	RelativeHumidity Cluster = 0x0405
)

// ID is an attribute id within a cluster.
type ID uint16

const (
	MeasuredValue              ID = 0x0000
	BatteryVoltage             ID = 0x0020
	BatteryPercentageRemaining ID = 0x0021
)

func (c Cluster) String() string {
	switch c {
	case PowerConfig:
		return "power-config"
	case RelativeHumidity:
		return "relative-humidity"
	}
	return fmt.Sprintf("cluster-0x%04x", uint16(c))
}

// Name returns a readable name for the attribute id within cluster c.
func (c Cluster) Name(id ID) string {
	switch {
	case c == RelativeHumidity && id == MeasuredValue:
		return "measured-value"
	case c == PowerConfig && id == BatteryVoltage:
		return "battery-voltage"
	case c == PowerConfig && id == BatteryPercentageRemaining:
		return "battery-percentage-remaining"
	}
	return fmt.Sprintf("attribute-0x%04x", uint16(id))
}

// Publisher pushes an attribute value to wherever reports are collected.
// Publishing never fails from the caller's point of view, implementations
// log their own errors.
type Publisher interface {
	PublishAttribute(cluster Cluster, id ID, value int)
}

// Fanout publishes to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) PublishAttribute(cluster Cluster, id ID, value int) {
	for _, p := range f {
		p.PublishAttribute(cluster, id, value)
	}
}

// Report is one published value.
type Report struct {
	Cluster Cluster   `json:"cluster"`
	ID      ID        `json:"attribute"`
	Value   int       `json:"value"`
	Time    time.Time `json:"time"`
}

type key struct {
	cluster Cluster
	id      ID
}

// HistorySize is how many reports a Store keeps.
const HistorySize = 1000

// Store keeps the latest published value of every attribute and the most
// recent HistorySize reports.
type Store struct {
	mu      sync.Mutex
	latest  map[key]Report
	counts  map[key]int
	history []Report
	next    int
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		latest: map[key]Report{},
		counts: map[key]int{},
		now:    time.Now,
	}
}

func (s *Store) PublishAttribute(cluster Cluster, id ID, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Report{Cluster: cluster, ID: id, Value: value, Time: s.now()}
	k := key{cluster, id}
	s.latest[k] = r
	s.counts[k]++
	if len(s.history) < HistorySize {
		s.history = append(s.history, r)
		return
	}
	s.history[s.next] = r
	s.next = (s.next + 1) % HistorySize
}

// Get returns the last value published for the attribute.
func (s *Store) Get(cluster Cluster, id ID) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.latest[key{cluster, id}]
	return r, ok
}

// History returns the retained reports in publish order.
func (s *Store) History() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Report, 0, len(s.history))
	h = append(h, s.history[s.next:]...)
	return append(h, s.history[:s.next]...)
}

// Count returns how many times the attribute has been published, including
// reports that have dropped out of the history.
func (s *Store) Count(cluster Cluster, id ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key{cluster, id}]
}
