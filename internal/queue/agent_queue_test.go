package queue

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func request(id string, opts ...func(*Request)) Request {
	r := Request{
		RequestID: id,
		AgentID:   "agent_eth_5m",
		Kind:      "hook_trigger",
		Priority:  PriorityNormal,
		Payload:   map[string]any{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func withPriority(p Priority) func(*Request) {
	return func(r *Request) { r.Priority = p }
}

func withDedupe(key string) func(*Request) {
	return func(r *Request) { r.DedupeKey = strPtr(key) }
}

func TestFollowupRunNowThenEnqueue(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 50, DropPolicy: DropOld})

	first := q.Enqueue(request("ar_1"), 1000)
	assert.Equal(t, DecisionRunNow, first.Type)
	require.NotNil(t, q.Active())
	assert.Equal(t, "ar_1", q.Active().RequestID)
	assert.Equal(t, 0, q.PendingCount())

	second := q.Enqueue(request("ar_2"), 1001)
	assert.Equal(t, DecisionEnqueued, second.Type)
	assert.Equal(t, "ar_1", q.Active().RequestID)
	assert.Equal(t, 1, q.PendingCount())
}

func TestDedupeAcrossActivePendingAndBuffer(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 10, DropPolicy: DropOld})

	q.Enqueue(request("ar_1", withDedupe("k")), 0)
	decision := q.Enqueue(request("ar_2", withDedupe("k")), 1)
	assert.Equal(t, DecisionDeduped, decision.Type)
	assert.Equal(t, 0, q.PendingCount())

	q.Enqueue(request("ar_3", withDedupe("p")), 2)
	decision = q.Enqueue(request("ar_4", withDedupe("p")), 3)
	assert.Equal(t, DecisionDeduped, decision.Type)

	collect := New(Settings{Mode: ModeCollect, Cap: 10, DropPolicy: DropOld, DebounceMs: 100})
	collect.Enqueue(request("ar_5", withDedupe("c")), 4)
	decision = collect.Enqueue(request("ar_6", withDedupe("c")), 5)
	assert.Equal(t, DecisionDeduped, decision.Type)
	assert.Equal(t, 1, collect.CollectCount())
}

func TestInterruptPreemptsOnHighPriority(t *testing.T) {
	q := New(Settings{Mode: ModeInterrupt, Cap: 10, DropPolicy: DropOld})

	q.Enqueue(request("ar_1"), 0)
	decision := q.Enqueue(request("ar_2", withPriority(PriorityHigh)), 1)

	assert.Equal(t, DecisionInterrupt, decision.Type)
	assert.Equal(t, "ar_2", q.Active().RequestID)
	// The preempted request is dropped, not re-queued.
	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, "ar_1", decision.Details["preemptedRequestId"])
}

func TestInterruptNormalPriorityQueuesBehindActive(t *testing.T) {
	q := New(Settings{Mode: ModeInterrupt, Cap: 10, DropPolicy: DropOld})

	q.Enqueue(request("ar_1"), 0)
	decision := q.Enqueue(request("ar_2"), 1)

	assert.Equal(t, DecisionEnqueued, decision.Type)
	assert.Equal(t, "ar_1", q.Active().RequestID)
}

func TestCapacityDropNew(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 2, DropPolicy: DropNew})

	q.Enqueue(request("ar_1"), 0)
	q.Enqueue(request("ar_2"), 1)
	decision := q.Enqueue(request("ar_3"), 2)

	assert.Equal(t, DecisionDropped, decision.Type)
	assert.Equal(t, "queue capacity reached", decision.Details["reason"])
	assert.Equal(t, 1, q.PendingCount())
}

func TestCapacityDropOldEvictsHead(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 3, DropPolicy: DropOld})

	q.Enqueue(request("ar_1"), 0)
	q.Enqueue(request("ar_2"), 1)
	q.Enqueue(request("ar_3"), 2)
	decision := q.Enqueue(request("ar_4"), 3)

	assert.Equal(t, DecisionEnqueued, decision.Type)
	pending := q.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "ar_3", pending[0].RequestID)
	assert.Equal(t, "ar_4", pending[1].RequestID)
}

func TestCapacityDropOldCapOneRejects(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 1, DropPolicy: DropOld})

	q.Enqueue(request("ar_1"), 0)
	decision := q.Enqueue(request("ar_2"), 1)

	// Active fills the only slot and pending is empty, so nothing can be
	// evicted; the new request is rejected.
	assert.Equal(t, DecisionDropped, decision.Type)
}

func TestCapacityInvariantHoldsUnderMixedLoad(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 5, DropPolicy: DropOld})

	for i := 0; i < 40; i++ {
		r := request(fmt.Sprintf("ar_%d", i))
		if i%3 == 0 {
			r.DedupeKey = strPtr(fmt.Sprintf("k_%d", i%6))
		}
		q.Enqueue(r, int64(i))

		occupied := q.PendingCount()
		if q.Active() != nil {
			occupied++
		}
		assert.LessOrEqual(t, occupied, 5)
	}
}

func TestCollectBuffersAndFlushesAfterDebounce(t *testing.T) {
	q := New(Settings{Mode: ModeCollect, Cap: 50, DropPolicy: DropOld, DebounceMs: 100})

	for i, now := range []int64{10, 30, 50} {
		decision := q.Enqueue(request(fmt.Sprintf("ar_%d", i+1)), now)
		assert.Equal(t, DecisionCollecting, decision.Type)
	}
	assert.Nil(t, q.Active())
	assert.Equal(t, 3, q.CollectCount())

	// Still inside the quiet period.
	assert.Nil(t, q.FlushCollect(70))

	batch := q.FlushCollect(160)
	require.NotNil(t, batch)
	assert.Equal(t, "collected_160", batch.RequestID)
	assert.Equal(t, "collect_batch", batch.Kind)
	assert.Equal(t, "agent_eth_5m", batch.AgentID)
	assert.Equal(t, 3, batch.Payload["count"])
	assert.Equal(t, []any{"ar_1", "ar_2", "ar_3"}, batch.Payload["requestIds"])

	assert.Equal(t, 0, q.CollectCount())
	assert.Nil(t, q.FlushCollect(300))
}

func TestCollectNeverPromotesBufferedRequests(t *testing.T) {
	q := New(Settings{Mode: ModeCollect, Cap: 50, DropPolicy: DropOld, DebounceMs: 0})

	q.Enqueue(request("ar_1"), 0)
	assert.Nil(t, q.Active())

	batch := q.FlushCollect(10)
	require.NotNil(t, batch)
	assert.Equal(t, "collect_batch", batch.Kind)
}

func TestSteerBacklogAndQueueModesBehaveLikeFollowup(t *testing.T) {
	for _, mode := range []Mode{ModeSteerBacklog, ModeQueue} {
		t.Run(string(mode), func(t *testing.T) {
			q := New(Settings{Mode: mode, Cap: 10, DropPolicy: DropOld})

			first := q.Enqueue(request("ar_1"), 0)
			second := q.Enqueue(request("ar_2", withPriority(PriorityHigh)), 1)

			assert.Equal(t, DecisionRunNow, first.Type)
			assert.Equal(t, DecisionEnqueued, second.Type)
			assert.Equal(t, "ar_1", q.Active().RequestID)
		})
	}
}

func TestMarkActiveCompletePromotesHead(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 10, DropPolicy: DropOld})

	q.Enqueue(request("ar_1"), 0)
	q.Enqueue(request("ar_2"), 1)
	q.Enqueue(request("ar_3"), 2)

	next := q.MarkActiveComplete()
	require.NotNil(t, next)
	assert.Equal(t, "ar_2", next.RequestID)
	assert.Equal(t, "ar_2", q.Active().RequestID)
	assert.Equal(t, 1, q.PendingCount())

	q.MarkActiveComplete()
	next = q.MarkActiveComplete()
	assert.Nil(t, next)
	assert.Nil(t, q.Active())
}

func TestSnapshotRoundTripIsExact(t *testing.T) {
	q := New(Settings{Mode: ModeCollect, Cap: 7, DropPolicy: DropNew, DebounceMs: 250})
	q.Enqueue(request("ar_1", withDedupe("k1")), 100)
	q.Enqueue(request("ar_2"), 140)

	snapshot := q.Snapshot()
	restored, err := FromSnapshot(snapshot)
	require.NoError(t, err)
	assert.Equal(t, snapshot, restored.Snapshot())

	// The restored queue must also behave identically: the debounce timer
	// carries over.
	assert.Nil(t, restored.FlushCollect(300))
	batch := restored.FlushCollect(400)
	require.NotNil(t, batch)
	assert.Equal(t, 2, batch.Payload["count"])
}

func TestSnapshotJSONShape(t *testing.T) {
	q := New(Settings{Mode: ModeFollowup, Cap: 50, DropPolicy: DropOld})
	q.Enqueue(request("ar_1"), 5)

	encoded, err := json.Marshal(q.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Contains(t, decoded, "settings")
	assert.Contains(t, decoded, "activeRequest")
	assert.Contains(t, decoded, "pending")
	assert.Contains(t, decoded, "collectBuffer")
	assert.Contains(t, decoded, "collectLastEnqueueMs")

	settings := decoded["settings"].(map[string]any)
	assert.Equal(t, "followup", settings["mode"])
	assert.Equal(t, float64(50), settings["cap"])
	assert.Equal(t, "old", settings["dropPolicy"])
}

func TestFromSnapshotRejectsInvalid(t *testing.T) {
	_, err := FromSnapshot(Snapshot{})
	assert.Error(t, err)

	_, err = FromSnapshot(Snapshot{
		Settings:      Settings{Mode: ModeFollowup, Cap: 5, DropPolicy: DropOld},
		ActiveRequest: &Request{RequestID: "", AgentID: "a", Kind: "k"},
	})
	assert.Error(t, err)
}

func TestRequestValidateDefaults(t *testing.T) {
	r := Request{RequestID: "ar_1", AgentID: "a", Kind: "k"}
	require.NoError(t, r.Validate())
	assert.Equal(t, PriorityNormal, r.Priority)
	assert.NotNil(t, r.Payload)

	bad := Request{RequestID: "ar_1", AgentID: "a", Kind: "k", Priority: "urgent"}
	assert.Error(t, bad.Validate())
}
