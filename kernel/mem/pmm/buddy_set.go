package pmm

import (
	"kestrel/kernel"
	"kestrel/kernel/mem"
	"kestrel/kernel/sync"
)

// maxBuddyRegions bounds how many regions the heap's bootstrap/grow
// sequence can register. Regions are stored inline (not behind a Go slice)
// so that growing the set never itself needs to allocate.
const maxBuddyRegions = 64

// ErrBuddySetFull is returned by BuddySet.AddRegion once maxBuddyRegions
// have already been registered.
var ErrBuddySetFull = &kernel.Error{Module: "pmm", Message: "buddy region set is full"}

// BuddySet is an ordered collection of BuddyRegions that together back the
// global heap once it has finished bootstrapping off the frame allocator.
// The region list itself is guarded by a readers/writer lock: allocation
// and deallocation take a read lock and walk regions in insertion order,
// try-locking each one in turn so a busy region cannot stall the walk;
// AddRegion takes the write lock.
type BuddySet struct {
	lock    sync.RWSpinlock
	count   int
	regions [maxBuddyRegions]BuddyRegion
}

// AddRegion registers a new region fronting [base, base+maxSize) with a
// leaf block size of leafSize.
func (s *BuddySet) AddRegion(base mem.PhysAddr, maxSize, leafSize mem.Size) *kernel.Error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.count >= maxBuddyRegions {
		return ErrBuddySetFull
	}

	s.regions[s.count] = *NewBuddyRegion(base, maxSize, leafSize)
	s.count++
	return nil
}

// Initialized returns true once at least one region has been registered.
func (s *BuddySet) Initialized() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.count > 0
}

// Alloc walks the registered regions in insertion order and returns the
// first block of at least size bytes that any of them can supply.
func (s *BuddySet) Alloc(size mem.Size) (mem.PhysAddr, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for i := 0; i < s.count; i++ {
		if addr, ok := s.regions[i].Alloc(size); ok {
			return addr, true
		}
	}
	return 0, false
}

// Dealloc locates the region whose range contains addr and returns the
// block to it.
func (s *BuddySet) Dealloc(addr mem.PhysAddr, size mem.Size) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	for i := 0; i < s.count; i++ {
		if s.regions[i].Contains(addr) {
			return s.regions[i].Dealloc(addr, size)
		}
	}
	return false
}
