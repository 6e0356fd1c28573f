package rooms

import (
	"errors"
	"sync"
	"testing"
)

type stubChannel struct {
	name string
}

func (c *stubChannel) TrySend(data []byte) bool { return true }

func TestRegistry_JoinAssignsStrictlyIncreasingIDs(t *testing.T) {
	r := NewRegistry(0)

	for want := 1; want <= 10; want++ {
		id, snapshot, err := r.Join("quiet-otter-ember", &stubChannel{})
		if err != nil {
			t.Fatalf("join %d: %v", want, err)
		}
		if id != want {
			t.Fatalf("join %d: id=%d", want, id)
		}
		if len(snapshot) != want || snapshot[len(snapshot)-1] != want {
			t.Fatalf("join %d: snapshot=%v", want, snapshot)
		}
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry(0)

	a := &stubChannel{name: "a"}
	if _, _, err := r.Join("r", a); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, _, err := r.Join("r", &stubChannel{name: "b"}); err != nil {
		t.Fatalf("join b: %v", err)
	}

	if id, ok := r.Leave("r", a); !ok || id != 1 {
		t.Fatalf("leave a: id=%d ok=%v", id, ok)
	}

	id, snapshot, err := r.Join("r", &stubChannel{name: "c"})
	if err != nil {
		t.Fatalf("join c: %v", err)
	}
	if id != 3 {
		t.Fatalf("freed id reused: id=%d, want 3", id)
	}
	if len(snapshot) != 2 || snapshot[0] != 2 || snapshot[1] != 3 {
		t.Fatalf("snapshot=%v, want [2 3]", snapshot)
	}
}

func TestRegistry_ConcurrentJoinsAssignUniqueIDs(t *testing.T) {
	const n = 64
	r := NewRegistry(0)

	var wg sync.WaitGroup
	ids := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := r.Join("busy", &stubChannel{})
			if err != nil {
				t.Errorf("join: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		if id < 1 || id > n {
			t.Fatalf("id %d out of range 1..%d", id, n)
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d unique ids, want %d", len(seen), n)
	}
}

func TestRegistry_JoinRejectedWhenFull(t *testing.T) {
	r := NewRegistry(2)

	if _, _, err := r.Join("full", &stubChannel{name: "a"}); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, _, err := r.Join("full", &stubChannel{name: "b"}); err != nil {
		t.Fatalf("join b: %v", err)
	}

	before := r.Members("full")

	c := &stubChannel{name: "c"}
	if _, _, err := r.Join("full", c); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("join c: err=%v, want ErrRoomFull", err)
	}

	after := r.Members("full")
	if len(after) != len(before) || after[0] != before[0] || after[1] != before[1] {
		t.Fatalf("membership changed by rejected join: before=%v after=%v", before, after)
	}
	if _, ok := r.Leave("full", c); ok {
		t.Fatalf("rejected channel was registered")
	}
}

func TestRegistry_LookupMiss(t *testing.T) {
	r := NewRegistry(0)
	if _, ok := r.Lookup("nope", 1); ok {
		t.Fatalf("lookup in unknown room succeeded")
	}

	if _, _, err := r.Join("r", &stubChannel{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, ok := r.Lookup("r", 99); ok {
		t.Fatalf("lookup of absent id succeeded")
	}
}

func TestRegistry_EmptyRoomPersists(t *testing.T) {
	r := NewRegistry(0)

	a := &stubChannel{}
	if _, _, err := r.Join("r", a); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, ok := r.Leave("r", a); !ok {
		t.Fatalf("leave failed")
	}

	// The room survives empty; the id counter keeps increasing.
	id, _, err := r.Join("r", &stubChannel{})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if id != 2 {
		t.Fatalf("rejoin id=%d, want 2", id)
	}
}

func TestRegistry_RemainingScopedToRoom(t *testing.T) {
	r := NewRegistry(0)

	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	other := &stubChannel{name: "other"}
	if _, _, err := r.Join("r", a); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join("r", b); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join("elsewhere", other); err != nil {
		t.Fatal(err)
	}

	r.Leave("r", a)
	remaining := r.Remaining("r")
	if len(remaining) != 1 || remaining[0] != MemberChannel(b) {
		t.Fatalf("remaining=%v, want just b", remaining)
	}
}
