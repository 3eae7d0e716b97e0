package pmm

import "testing"

func TestFreeFrameCachePushPop(t *testing.T) {
	var c freeFrameCache

	if _, ok := c.pop(); ok {
		t.Fatal("expected pop on an empty cache to fail")
	}

	if !c.push(Frame(1)) {
		t.Fatal("expected push to succeed")
	}
	if !c.push(Frame(2)) {
		t.Fatal("expected push to succeed")
	}

	if f, ok := c.pop(); !ok || f != Frame(2) {
		t.Errorf("expected pop to return the most recently pushed frame; got %v, %v", f, ok)
	}
	if f, ok := c.pop(); !ok || f != Frame(1) {
		t.Errorf("expected pop to return the remaining frame; got %v, %v", f, ok)
	}
	if _, ok := c.pop(); ok {
		t.Error("expected pop on a drained cache to fail")
	}
}

func TestFreeFrameCacheDropsWhenLockBusy(t *testing.T) {
	var c freeFrameCache

	c.lock.Acquire()
	defer c.lock.Release()

	if c.push(Frame(1)) {
		t.Error("expected push to drop the frame when the lock is contended")
	}
	if _, ok := c.pop(); ok {
		t.Error("expected pop to fail when the lock is contended")
	}
}

func TestFreeFrameCacheFull(t *testing.T) {
	var c freeFrameCache
	for i := 0; i < freeFrameCacheCap; i++ {
		if !c.push(Frame(i)) {
			t.Fatalf("unexpected push failure at %d", i)
		}
	}

	if c.push(Frame(freeFrameCacheCap)) {
		t.Error("expected push to drop the frame once the cache is full")
	}
}
