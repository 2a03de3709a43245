package renderer

import (
	"sync"
	"testing"

	"github.com/microcompunics/imbatracer/pkg/core"
)

const testBlockSize = 64

// One million concurrent pushes from 16 goroutines must land exactly once
// each, with no duplicates and no torn writes.
func TestQueueConcurrentPushStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	const producers = 16
	const perProducer = 62500 // 1e6 total
	total := producers * perProducer

	q := NewRayQueue(total, testBlockSize)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := p*perProducer + i
				ray := core.NewRay(core.NewVec3(float64(id), float64(p), 0), core.NewVec3(0, 0, 1), 0, float64(id))
				state := PathState{PixelID: id, SampleID: p}
				q.Push(ray, state)
			}
		}(p)
	}
	wg.Wait()

	if q.Size() != total {
		t.Fatalf("size = %d, want %d", q.Size(), total)
	}

	seen := make([]bool, total)
	for i := 0; i < q.Size(); i++ {
		state := q.State(i)
		ray := q.Ray(i)
		if state.PixelID < 0 || state.PixelID >= total {
			t.Fatalf("entry %d: pixel id %d out of range", i, state.PixelID)
		}
		if seen[state.PixelID] {
			t.Fatalf("duplicate entry for id %d", state.PixelID)
		}
		seen[state.PixelID] = true

		// Ray and state must belong together (no torn writes)
		if int(ray.Org.X) != state.PixelID || int(ray.Tmax) != state.PixelID {
			t.Fatalf("entry %d: ray/state mismatch: ray=%v state=%+v", i, ray, state)
		}
	}
}

func TestQueuePushBatch(t *testing.T) {
	q := NewRayQueue(128, testBlockSize)

	rays := make([]core.Ray, 10)
	states := make([]PathState, 10)
	for i := range rays {
		rays[i] = core.NewRay(core.NewVec3(float64(i), 0, 0), core.NewVec3(0, 0, 1), 0, 100)
		states[i] = PathState{PixelID: i}
	}
	q.PushBatch(rays, states)

	if q.Size() != 10 {
		t.Fatalf("size = %d, want 10", q.Size())
	}
	for i := 0; i < 10; i++ {
		if q.State(i).PixelID != int(q.Ray(i).Org.X) {
			t.Fatalf("entry %d out of order", i)
		}
	}
}

func TestQueueClearRestartsAtZero(t *testing.T) {
	q := NewRayQueue(64, testBlockSize)
	q.Push(core.InertRay(), PathState{PixelID: 1})
	q.Clear()
	if q.Size() != 0 {
		t.Fatalf("size after clear = %d", q.Size())
	}
	q.Push(core.InertRay(), PathState{PixelID: 2})
	if q.Size() != 1 || q.State(0).PixelID != 2 {
		t.Error("push after clear did not start from index 0")
	}
}

func TestQueueOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on overflow")
		}
	}()
	q := NewRayQueue(1, 1)
	q.Push(core.InertRay(), PathState{})
	q.Push(core.InertRay(), PathState{})
}

func TestCompactHitsPartitions(t *testing.T) {
	q := NewRayQueue(128, testBlockSize)
	for i := 0; i < 40; i++ {
		q.Push(core.InertRay(), PathState{PixelID: i})
	}
	// Alternate hits and misses
	for i := 0; i < 40; i++ {
		if i%3 == 0 {
			q.hits[i] = core.Hit{TriID: int32(i), T: 1}
		} else {
			q.hits[i] = core.Miss()
		}
	}

	hitPixels := map[int]bool{}
	for i := 0; i < 40; i++ {
		if q.hits[i].TriID >= 0 {
			hitPixels[q.State(i).PixelID] = true
		}
	}

	k := q.CompactHits()
	if k != 14 { // ceil(40/3)
		t.Fatalf("k = %d, want 14", k)
	}
	for i := 0; i < k; i++ {
		if q.Hit(i).TriID < 0 {
			t.Fatalf("index %d < k has a miss", i)
		}
		if !hitPixels[q.State(i).PixelID] {
			t.Fatalf("hit entry %d lost its state", i)
		}
	}
	for i := k; i < q.Size(); i++ {
		if q.Hit(i).TriID >= 0 {
			t.Fatalf("index %d >= k has a hit", i)
		}
	}
}

func TestSortByMaterialGroups(t *testing.T) {
	q := NewRayQueue(128, testBlockSize)
	mats := []int32{3, 1, 2, 1, 3, 0, 2, 0, 1}
	for i, m := range mats {
		q.Push(core.InertRay(), PathState{PixelID: i})
		q.hits[i] = core.Hit{TriID: m, T: 1}
	}

	q.SortByMaterial(func(h core.Hit) int32 { return h.TriID })

	last := int32(-1)
	seen := map[int]bool{}
	for i := 0; i < q.Size(); i++ {
		m := q.Hit(i).TriID
		if m < last {
			t.Fatalf("materials not grouped: %d after %d", m, last)
		}
		last = m
		seen[q.State(i).PixelID] = true
	}
	if len(seen) != len(mats) {
		t.Fatalf("entries lost: %d of %d", len(seen), len(mats))
	}
}

func TestQueueCapacityRoundsToBlock(t *testing.T) {
	q := NewRayQueue(100, 64)
	if q.Capacity()%64 != 0 {
		t.Errorf("capacity %d not a block multiple", q.Capacity())
	}
}
