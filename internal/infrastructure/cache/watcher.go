package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// graphChannel is the NOTIFY channel carrying graph change events
const graphChannel = "yakuwari_graph_changed"

// GraphWatcher propagates authorization graph invalidations across
// processes using PostgreSQL LISTEN/NOTIFY. A process that mutates the
// graph calls Broadcast; every process with a running watcher gets its
// onChange callback invoked and can drop its resident snapshot.
type GraphWatcher struct {
	mu       sync.Mutex
	db       *sql.DB
	connStr  string
	listener *pq.Listener
	onChange func()
	stopCh   chan struct{}
	stopped  bool
}

// NewGraphWatcher creates a new GraphWatcher.
// connStr is the PostgreSQL connection string used by the listener.
func NewGraphWatcher(db *sql.DB, connStr string) *GraphWatcher {
	return &GraphWatcher{
		db:      db,
		connStr: connStr,
		stopCh:  make(chan struct{}),
	}
}

// OnChange sets the callback invoked for every received change event.
// Must be called before Start.
func (w *GraphWatcher) OnChange(fn func()) {
	w.onChange = fn
}

// Start begins listening for change events
func (w *GraphWatcher) Start() error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			// The listener reconnects on its own; nothing to do here
			fmt.Printf("GraphWatcher listener error: %v\n", err)
		}
	}

	w.listener = pq.NewListener(w.connStr, 10*time.Second, time.Minute, reportProblem)

	if err := w.listener.Listen(graphChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", graphChannel, err)
	}

	go w.handleNotifications()
	return nil
}

// Stop stops the watcher and closes the listener
func (w *GraphWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.mu.Unlock()

	if w.listener != nil {
		return w.listener.Close()
	}
	return nil
}

// Broadcast signals every listening process that the graph has changed
func (w *GraphWatcher) Broadcast(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, `SELECT pg_notify($1, '')`, graphChannel); err != nil {
		return fmt.Errorf("failed to broadcast graph change: %w", err)
	}
	return nil
}

func (w *GraphWatcher) handleNotifications() {
	for {
		select {
		case <-w.stopCh:
			return
		case notification := <-w.listener.Notify:
			if notification == nil {
				// Connection lost, the listener reconnects automatically
				continue
			}
			w.dispatch()
		case <-time.After(90 * time.Second):
			// Periodic ping to keep the connection alive
			go func() {
				if err := w.listener.Ping(); err != nil {
					fmt.Printf("GraphWatcher ping error: %v\n", err)
				}
			}()
		}
	}
}

func (w *GraphWatcher) dispatch() {
	if w.onChange != nil {
		w.onChange()
	}
}
