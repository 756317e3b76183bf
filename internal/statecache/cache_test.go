package statecache

import (
	"sync"
	"testing"
)

type pair struct {
	A int
	B int // always -2*A
}

func TestGetReturnsCopy(t *testing.T) {
	c := New[int, pair]()
	c.Put(1, pair{A: 1, B: -2})

	v, _ := c.Get(1)
	v.A = 99

	got, ok := c.Get(1)
	if !ok || got.A != 1 {
		t.Errorf("Get() = %+v, %v; want A=1", got, ok)
	}
}

func TestUpdate(t *testing.T) {
	c := New[int, pair]()
	c.Put(3, pair{A: 1, B: -2})

	before, after, ok := c.Update(3, func(p *pair) {
		p.A = 5
		p.B = -10
	})
	if !ok {
		t.Fatal("Update() ok = false")
	}
	if before.A != 1 || after.A != 5 {
		t.Errorf("Update() before=%+v after=%+v", before, after)
	}

	called := false
	if _, _, ok := c.Update(4, func(*pair) { called = true }); ok || called {
		t.Errorf("Update(missing) ok=%v called=%v, want false false", ok, called)
	}
}

func TestReplaceSnapshotClear(t *testing.T) {
	c := New[int, pair]()
	src := map[int]pair{1: {1, -2}, 2: {2, -4}}
	c.Replace(src)
	src[1] = pair{100, 0}

	snap := c.Snapshot()
	if len(snap) != 2 || snap[1].A != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d", c.Len())
	}
}

// TestConcurrentReadersNeverSeeTornValues runs readers against one writer.
// Every write keeps B == -2*A, so any reader seeing otherwise observed a
// value mixed from two writes.
func TestConcurrentReadersNeverSeeTornValues(t *testing.T) {
	c := New[int, pair]()
	c.Put(0, pair{})

	const readers = 8
	const writes = 5000

	var wg sync.WaitGroup
	done := make(chan struct{})
	torn := make(chan pair, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				v, _ := c.Get(0)
				if v.B != -2*v.A {
					torn <- v
					return
				}
			}
		}()
	}

	for i := 1; i <= writes; i++ {
		n := i
		if i%2 == 0 {
			c.Put(0, pair{A: n, B: -2 * n})
		} else {
			c.Update(0, func(p *pair) {
				p.A = n
				p.B = -2 * n
			})
		}
	}
	close(done)
	wg.Wait()
	close(torn)

	for v := range torn {
		t.Errorf("reader observed torn value %+v", v)
	}
}
