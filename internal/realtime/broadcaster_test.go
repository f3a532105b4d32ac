package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sst-platform/incidentd/internal/domain/event"
	"github.com/sst-platform/incidentd/internal/domain/incident"
)

func ptr[T any](v T) *T { return &v }

func testEnvelope(id int64) event.Envelope {
	return event.NewIncidentCreated(&incident.Incident{
		ID:        id,
		Title:     "Pothole",
		Status:    incident.StatusActive,
		Latitude:  ptr(54.78),
		Longitude: ptr(32.05),
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
}

func drain(q *Queue) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-q.C():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestNewBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected empty registry, got %d", b.SubscriberCount())
	}
	if b.QueueCapacity() != DefaultQueueCapacity {
		t.Fatalf("expected default capacity %d, got %d", DefaultQueueCapacity, b.QueueCapacity())
	}
}

func TestWithQueueCapacityIgnoresInvalid(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(0))
	if b.QueueCapacity() != DefaultQueueCapacity {
		t.Fatalf("expected default capacity, got %d", b.QueueCapacity())
	}
}

func TestRegister_IDsStrictlyIncreasing(t *testing.T) {
	b := NewBroadcaster()

	var last SubscriberID
	for i := range 50 {
		id, q := b.Register()
		if q == nil {
			t.Fatal("Register returned nil queue")
		}
		if i > 0 && id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
	if b.SubscriberCount() != 50 {
		t.Fatalf("expected 50 subscribers, got %d", b.SubscriberCount())
	}
}

func TestRegister_IDsNotReusedAfterUnregister(t *testing.T) {
	b := NewBroadcaster()
	id1, _ := b.Register()
	b.Unregister(id1)
	id2, _ := b.Register()
	if id2 <= id1 {
		t.Fatalf("id reused or decreased: %d after %d", id2, id1)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	b := NewBroadcaster()
	id, _ := b.Register()
	other, _ := b.Register()

	if !b.Unregister(id) {
		t.Fatal("first unregister should remove the entry")
	}
	if b.Unregister(id) {
		t.Fatal("second unregister should be a no-op")
	}
	if b.Unregister(SubscriberID(9999)) {
		t.Fatal("unregistering an unknown id should be a no-op")
	}
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 remaining subscriber, got %d", b.SubscriberCount())
	}
	b.Unregister(other)
}

func TestPublish_EndToEndPayload(t *testing.T) {
	b := NewBroadcaster()
	_, q := b.Register()

	if err := b.Publish(context.Background(), testEnvelope(1)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := drain(q)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 payload, got %d", len(got))
	}
	want := `{"type":"incident.created","data":{"id":1,"title":"Pothole","status":"active","latitude":54.78,"longitude":32.05,"created_at":"2024-01-01T00:00:00"}}`
	if string(got[0]) != want {
		t.Errorf("payload mismatch\n got: %s\nwant: %s", got[0], want)
	}
}

func TestPublish_AllSubscribersReceiveIdenticalPayload(t *testing.T) {
	b := NewBroadcaster()
	const n = 5
	queues := make([]*Queue, n)
	for i := range n {
		_, queues[i] = b.Register()
	}

	if err := b.Publish(context.Background(), testEnvelope(7)); err != nil {
		t.Fatal(err)
	}

	var first []byte
	for i, q := range queues {
		got := drain(q)
		if len(got) != 1 {
			t.Fatalf("subscriber %d: expected 1 payload, got %d", i, len(got))
		}
		if first == nil {
			first = got[0]
			continue
		}
		// Encoded once: every queue holds the same backing array.
		if &got[0][0] != &first[0] {
			t.Errorf("subscriber %d received a separately encoded payload", i)
		}
	}
}

func TestPublish_PerSubscriberFIFO(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(16))
	_, q1 := b.Register()
	_, q2 := b.Register()

	for i := int64(1); i <= 10; i++ {
		if err := b.Publish(context.Background(), testEnvelope(i)); err != nil {
			t.Fatal(err)
		}
	}

	for name, q := range map[string]*Queue{"q1": q1, "q2": q2} {
		got := drain(q)
		if len(got) != 10 {
			t.Fatalf("%s: expected 10 payloads, got %d", name, len(got))
		}
		for i, p := range got {
			var env struct {
				Data struct {
					ID int64 `json:"id"`
				} `json:"data"`
			}
			if err := json.Unmarshal(p, &env); err != nil {
				t.Fatal(err)
			}
			if env.Data.ID != int64(i+1) {
				t.Fatalf("%s: position %d has id %d, want %d", name, i, env.Data.ID, i+1)
			}
		}
	}
}

func TestPublish_UnregisteredSubscriberSkipped(t *testing.T) {
	b := NewBroadcaster()
	idA, qA := b.Register()
	_, qB := b.Register()
	b.Unregister(idA)

	if err := b.Publish(context.Background(), testEnvelope(1)); err != nil {
		t.Fatal(err)
	}

	if n := len(drain(qA)); n != 0 {
		t.Errorf("unregistered A received %d events", n)
	}
	if n := len(drain(qB)); n != 1 {
		t.Errorf("B expected 1 event, got %d", n)
	}
}

func TestPublish_DropNewestWhenFull(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(1))
	_, q := b.Register()

	_ = b.Publish(context.Background(), testEnvelope(1))
	_ = b.Publish(context.Background(), testEnvelope(2))

	got := drain(q)
	if len(got) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(got))
	}
	var env struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(got[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.ID != 1 {
		t.Errorf("expected the first event to be kept, got id %d", env.Data.ID)
	}

	stats := b.Stats()
	if stats.Published != 2 || stats.Delivered != 1 || stats.Dropped != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPublish_FullQueueDoesNotAffectOthers(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(1))
	_, slow := b.Register()
	_, fast := b.Register()

	_ = b.Publish(context.Background(), testEnvelope(1))
	drain(fast) // fast consumer keeps up, slow one does not

	_ = b.Publish(context.Background(), testEnvelope(2))

	if n := slow.Len(); n != 1 {
		t.Errorf("slow queue should still hold only the first event, has %d", n)
	}
	if n := len(drain(fast)); n != 1 {
		t.Errorf("fast subscriber should receive the second event, got %d", n)
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	b := NewBroadcaster()
	if err := b.Publish(context.Background(), testEnvelope(1)); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
	if got := b.Stats().Published; got != 1 {
		t.Errorf("published = %d, want 1", got)
	}
}

func TestPublish_EncodeError(t *testing.T) {
	b := NewBroadcaster()
	_, q := b.Register()

	if err := b.Publish(context.Background(), event.New("bad", make(chan int))); err == nil {
		t.Fatal("expected encode error")
	}
	if q.Len() != 0 {
		t.Errorf("nothing should be enqueued on encode failure, got %d", q.Len())
	}
}

func TestPublish_LateRegistrationMissesInFlightEvent(t *testing.T) {
	b := NewBroadcaster()
	_, early := b.Register()
	_ = b.Publish(context.Background(), testEnvelope(1))
	_, late := b.Register()

	if n := len(drain(early)); n != 1 {
		t.Errorf("early subscriber expected 1 event, got %d", n)
	}
	if n := len(drain(late)); n != 0 {
		t.Errorf("late subscriber should not see earlier events, got %d", n)
	}
}

func TestBroadcaster_ConcurrentStress(t *testing.T) {
	b := NewBroadcaster(WithQueueCapacity(2048))

	const registrations = 100
	const publishes = 1000

	ids := make(chan SubscriberID, registrations)
	var wg sync.WaitGroup

	for range registrations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := b.Register()
			ids <- id
		}()
	}
	for i := range publishes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Publish(context.Background(), testEnvelope(int64(i)))
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[SubscriberID]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate subscriber id %d", id)
		}
		seen[id] = true
	}
	if b.SubscriberCount() != registrations {
		t.Fatalf("expected %d subscribers, got %d", registrations, b.SubscriberCount())
	}

	var unwg sync.WaitGroup
	for id := range seen {
		unwg.Add(1)
		go func() {
			defer unwg.Done()
			b.Unregister(id)
			b.Unregister(id)
		}()
		unwg.Add(1)
		go func() {
			defer unwg.Done()
			_ = b.Publish(context.Background(), testEnvelope(0))
		}()
	}
	unwg.Wait()

	if b.SubscriberCount() != 0 {
		t.Fatalf("expected empty registry, got %d", b.SubscriberCount())
	}
	if got := b.Stats().Published; got != publishes+registrations {
		t.Fatalf("published = %d, want %d", got, publishes+registrations)
	}
}

type countingObserver struct {
	added, removed, published atomic.Int64
	dropped                   atomic.Int64
}

func (o *countingObserver) SubscriberAdded(context.Context)   { o.added.Add(1) }
func (o *countingObserver) SubscriberRemoved(context.Context) { o.removed.Add(1) }
func (o *countingObserver) Published(_ context.Context, _ event.Type, _, dropped int) {
	o.published.Add(1)
	o.dropped.Add(int64(dropped))
}

func TestObserverNotifications(t *testing.T) {
	obs := &countingObserver{}
	b := NewBroadcaster(WithQueueCapacity(1), WithObserver(obs))

	id, _ := b.Register()
	_ = b.Publish(context.Background(), testEnvelope(1))
	_ = b.Publish(context.Background(), testEnvelope(2))
	b.Unregister(id)
	b.Unregister(id)

	if obs.added.Load() != 1 || obs.removed.Load() != 1 {
		t.Errorf("added=%d removed=%d, want 1/1", obs.added.Load(), obs.removed.Load())
	}
	if obs.published.Load() != 2 || obs.dropped.Load() != 1 {
		t.Errorf("published=%d dropped=%d, want 2/1", obs.published.Load(), obs.dropped.Load())
	}
}

func TestQueueNextHonoursContext(t *testing.T) {
	q := newQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); err == nil {
		t.Fatal("expected context error from Next")
	}

	q.offer([]byte("x"))
	p, err := q.Next(context.Background())
	if err != nil || string(p) != "x" {
		t.Fatalf("Next = %q, %v; want x, nil", p, err)
	}
}
