package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ChangeChannel is the NOTIFY channel the row triggers publish on.
const ChangeChannel = "partner_changes"

// OpResync is sent to every subscriber after the listener reconnects, since
// notifications raised while it was down are lost.
const OpResync = "RESYNC"

// ChangeEvent is a hint that a row changed. Subscribers re-read the store; they never trust the event's content.
type ChangeEvent struct {
	Table       string `json:"table"`
	Op          string `json:"op"`
	TeamID      string `json:"team_id"`
	RecipientID string `json:"recipient_id"`
}

type subscription struct {
	table  string
	filter func(ChangeEvent) bool
	ch     chan ChangeEvent
}

// ChangeFeed fans LISTEN/NOTIFY events out to in-process subscribers.
type ChangeFeed struct {
	listener *pq.Listener
	log      *logrus.Entry

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// NewChangeFeed connects a dedicated listener connection to dsn.
func NewChangeFeed(dsn string, log *logrus.Entry) (*ChangeFeed, error) {
	cf := newChangeFeed(log)
	cf.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, cf.onListenerEvent)
	if err := cf.listener.Listen(ChangeChannel); err != nil {
		cf.listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
	}
	return cf, nil
}

func newChangeFeed(log *logrus.Entry) *ChangeFeed {
	return &ChangeFeed{log: log, subs: make(map[int]*subscription)}
}

func (cf *ChangeFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		cf.log.WithError(err).Warn("Change feed listener lost its connection")
	case pq.ListenerEventReconnected:
		cf.log.Info("Change feed listener reconnected")
	}
}

// Subscribe streams events of table that pass filter until ctx is done.
// A nil filter accepts everything. Slow subscribers miss events rather than stall the feed.
func (cf *ChangeFeed) Subscribe(ctx context.Context, table string, filter func(ChangeEvent) bool) (<-chan ChangeEvent, error) {
	if table == "" {
		return nil, fmt.Errorf("change feed subscription needs a table")
	}
	sub := &subscription{table: table, filter: filter, ch: make(chan ChangeEvent, 16)}

	cf.mu.Lock()
	id := cf.nextID
	cf.nextID++
	cf.subs[id] = sub
	cf.mu.Unlock()

	go func() {
		<-ctx.Done()
		cf.mu.Lock()
		delete(cf.subs, id)
		cf.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

// Run pumps notifications until ctx is done.
func (cf *ChangeFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-cf.listener.Notify:
			if n == nil {
				cf.broadcastResync()
				continue
			}
			cf.dispatch(n.Extra)
		case <-ticker.C:
			go func() {
				if err := cf.listener.Ping(); err != nil {
					cf.log.WithError(err).Debug("Change feed ping failed")
				}
			}()
		}
	}
}

func (cf *ChangeFeed) Close() error {
	if cf.listener == nil {
		return nil
	}
	return cf.listener.Close()
}

func (cf *ChangeFeed) dispatch(payload string) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		cf.log.WithError(err).Warn("Dropping malformed change event")
		return
	}

	cf.mu.Lock()
	defer cf.mu.Unlock()
	for _, sub := range cf.subs {
		if sub.table != ev.Table {
			continue
		}
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		cf.offer(sub, ev)
	}
}

func (cf *ChangeFeed) broadcastResync() {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	for _, sub := range cf.subs {
		cf.offer(sub, ChangeEvent{Table: sub.table, Op: OpResync})
	}
}

func (cf *ChangeFeed) offer(sub *subscription, ev ChangeEvent) {
	select {
	case sub.ch <- ev:
	default:
		cf.log.WithField("table", sub.table).Debug("Change feed subscriber is behind, dropping event")
	}
}
