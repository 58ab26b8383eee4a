package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// changeChannel is the NOTIFY channel the profiles/user_goals triggers publish on
// (see db/2026-10-01-004-change-notify-triggers.sql).
const changeChannel = "wellness_changes"

// changeEvent is one row change delivered by the database.
type changeEvent struct {
	Table  string          `json:"table"`
	Op     string          `json:"op"` // INSERT | UPDATE | DELETE
	UserID int             `json:"user_id"`
	Row    json.RawMessage `json:"row"`
}

// changeFilter selects events. A zero field matches anything.
type changeFilter struct {
	Table  string
	UserID int
}

func (f changeFilter) matches(e changeEvent) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.UserID != 0 && f.UserID != e.UserID {
		return false
	}
	return true
}

// changeSource is a push source of row changes. The returned func removes the
// subscription and is safe to call more than once.
type changeSource interface {
	Subscribe(filter changeFilter, handler func(changeEvent)) (unsubscribe func())
}

type subscription struct {
	filter  changeFilter
	handler func(changeEvent)
}

// changeFeed fans Postgres LISTEN/NOTIFY events out to in-process subscribers.
type changeFeed struct {
	db         *pgxpool.Pool
	retryDelay time.Duration

	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
}

var _ changeSource = (*changeFeed)(nil)

func newChangeFeed(db *pgxpool.Pool) *changeFeed {
	return &changeFeed{
		db:         db,
		retryDelay: 3 * time.Second,
		subs:       make(map[int]subscription),
	}
}

func (f *changeFeed) Subscribe(filter changeFilter, handler func(changeEvent)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = subscription{filter: filter, handler: handler}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// publish delivers e to every matching subscriber on the caller's goroutine,
// in subscription order. Handlers are snapshotted first so they may
// unsubscribe from inside a callback.
func (f *changeFeed) publish(e changeEvent) {
	f.mu.RLock()
	matched := make([]func(changeEvent), 0, len(f.subs))
	for _, id := range slices.Sorted(maps.Keys(f.subs)) {
		if s := f.subs[id]; s.filter.matches(e) {
			matched = append(matched, s.handler)
		}
	}
	f.mu.RUnlock()

	for _, h := range matched {
		h(e)
	}
}

// Run listens until ctx is cancelled, reconnecting after retryDelay whenever
// the listening connection fails.
func (f *changeFeed) Run(ctx context.Context) error {
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[changeFeed] listen failed, retrying in %s: %v", f.retryDelay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.retryDelay):
		}
	}
}

// listen holds one dedicated connection in LISTEN mode. The connection is
// hijacked from the pool so a LISTENing session is never handed to a query.
func (f *changeFeed) listen(ctx context.Context) error {
	pooled, err := f.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Printf("[changeFeed] listening on %s", changeChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		e, err := decodeChangeEvent(n.Payload)
		if err != nil {
			log.Printf("[changeFeed] dropping malformed payload: %v", err)
			continue
		}
		f.publish(e)
	}
}

var errMissingTable = errors.New("change event has no table")

func decodeChangeEvent(payload string) (changeEvent, error) {
	var e changeEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return changeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if e.Table == "" {
		return changeEvent{}, errMissingTable
	}
	return e, nil
}
