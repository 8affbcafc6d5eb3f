package controller

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mailbox runs submitted work serially per key. Work for different keys
// runs concurrently. A key's goroutine exits once its queue drains.
type Mailbox struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

type lane struct {
	pending []func()
}

// NewMailbox creates an empty Mailbox.
func NewMailbox(log logrus.FieldLogger) *Mailbox {
	return &Mailbox{log: log, lanes: make(map[string]*lane)}
}

// Submit queues fn behind any work already pending for key.
func (m *Mailbox) Submit(key string, fn func()) {
	m.mu.Lock()
	if l, ok := m.lanes[key]; ok {
		l.pending = append(l.pending, fn)
		m.mu.Unlock()
		return
	}
	l := &lane{pending: []func(){fn}}
	m.lanes[key] = l
	m.wg.Add(1)
	m.mu.Unlock()

	go m.drain(key, l)
}

// Wait blocks until every lane is idle.
func (m *Mailbox) Wait() { m.wg.Wait() }

func (m *Mailbox) drain(key string, l *lane) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if len(l.pending) == 0 {
			delete(m.lanes, key)
			m.mu.Unlock()
			return
		}
		fn := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		m.mu.Unlock()

		m.run(key, fn)
	}
}

// run executes fn, recovering a panic so one bad event cannot kill the lane.
func (m *Mailbox) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithFields(logrus.Fields{
				"lane":  key,
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("panic in mailbox handler")
		}
	}()
	fn()
}
