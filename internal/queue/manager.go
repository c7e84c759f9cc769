package queue

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Manager owns every agent queue in the process. It is the sole writer for
// queue state: a single mutex makes per-agent transitions linearizable,
// and each mutation is flushed through the snapshot store before the lock
// is released.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*AgentQueue
	store  *SnapshotStore
	logger *slog.Logger
	clock  func() int64 // monotonic-ish milliseconds
}

// NewManager restores queues from the snapshot store.
func NewManager(store *SnapshotStore, clock func() int64, logger *slog.Logger) *Manager {
	queues := store.Load()
	return &Manager{
		queues: queues,
		store:  store,
		logger: logger.With(slog.String("component", "queue_manager")),
		clock:  clock,
	}
}

// Submit admits a request into its agent's queue, creating the queue with
// followup defaults when the agent has none yet.
func (m *Manager) Submit(request Request) (Decision, error) {
	if err := request.Validate(); err != nil {
		return Decision{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(request.AgentID)
	decision := q.Enqueue(request, m.clock())
	m.persistLocked()
	return decision, nil
}

// Configure replaces an agent's queue settings, preserving its contents.
func (m *Manager) Configure(agentID string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queueLocked(agentID)
	q.settings = settings
	m.persistLocked()
	return nil
}

// Complete clears the agent's active request and returns the promoted
// successor, if any.
func (m *Manager) Complete(agentID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[agentID]
	if !ok {
		return nil, fmt.Errorf("queue: no queue for agent %q", agentID)
	}
	next := q.MarkActiveComplete()
	m.persistLocked()
	return next, nil
}

// FlushCollect sweeps every collect-mode queue, re-admitting any batch the
// debounce window released. Returned decisions are keyed by agent id.
func (m *Manager) FlushCollect() map[string]Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	decisions := make(map[string]Decision)
	changed := false
	for agentID, q := range m.queues {
		batch := q.FlushCollect(now)
		if batch == nil {
			continue
		}
		changed = true
		// The batch re-enters admission like any other request; collect
		// queues never promote buffered requests directly. The capacity
		// invariant still applies, so a full queue exercises the drop
		// policy against the batch.
		switch {
		case q.active == nil:
			q.active = batch
			decisions[agentID] = decide(DecisionRunNow, batch, nil)
		case q.hasCapacityForPending():
			q.pending = append(q.pending, *batch)
			decisions[agentID] = decide(DecisionEnqueued, batch, nil)
		case q.settings.DropPolicy == DropOld && len(q.pending) > 0:
			q.pending = append(q.pending[1:], *batch)
			decisions[agentID] = decide(DecisionEnqueued, batch, nil)
		default:
			decisions[agentID] = decide(DecisionDropped, batch, map[string]any{"reason": "queue capacity reached"})
		}
	}
	if changed {
		m.persistLocked()
	}
	return decisions
}

// StatusPayload is the wire shape for agent.queue.status.
type StatusPayload struct {
	AgentID         string  `json:"agentId"`
	Mode            Mode    `json:"mode"`
	Cap             int     `json:"cap"`
	ActiveRequestID *string `json:"activeRequestId"`
	PendingCount    int     `json:"pendingCount"`
	CollectCount    int     `json:"collectCount"`
}

// Status reports the queue state for one agent. Agents without a queue
// yet report an empty followup queue.
func (m *Manager) Status(agentID string) StatusPayload {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[agentID]
	if !ok {
		defaults := DefaultSettings()
		return StatusPayload{AgentID: agentID, Mode: defaults.Mode, Cap: defaults.Cap}
	}

	var activeID *string
	if q.active != nil {
		id := q.active.RequestID
		activeID = &id
	}
	return StatusPayload{
		AgentID:         agentID,
		Mode:            q.settings.Mode,
		Cap:             q.settings.Cap,
		ActiveRequestID: activeID,
		PendingCount:    len(q.pending),
		CollectCount:    len(q.collectBuffer),
	}
}

// AgentIDs lists agents with queues, sorted.
func (m *Manager) AgentIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) queueLocked(agentID string) *AgentQueue {
	q, ok := m.queues[agentID]
	if !ok {
		q = New(DefaultSettings())
		m.queues[agentID] = q
	}
	return q
}

func (m *Manager) persistLocked() {
	if err := m.store.Save(m.queues); err != nil {
		m.logger.Error("queue: persist snapshot failed", slog.String("error", err.Error()))
	}
}
