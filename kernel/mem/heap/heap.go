// Package heap implements the global kernel heap: a buddy allocator set
// fronted by a small free-frame cache during the bootstrap window before
// any buddy region exists, both ultimately backed by the boot-time bump
// frame allocator.
package heap

import (
	"kestrel/kernel"
	"kestrel/kernel/mem"
	"kestrel/kernel/mem/pmm"
	"kestrel/kernel/mem/pmm/allocator"
)

var (
	buddySet  pmm.BuddySet
	freeCache pmm.FreeFrameCache

	// allocFrameFn is overridden by heap_test.go so tests never touch the
	// real boot-time bump allocator.
	allocFrameFn = allocator.AllocFrame

	errHeapOutOfMemory     = &kernel.Error{Module: "heap", Message: "out of memory"}
	errHeapBootstrapFailed = &kernel.Error{Module: "heap", Message: "could not reserve the bootstrap buddy region"}
	errHeapNotDirectMapped = &kernel.Error{Module: "heap", Message: "heap pointer is not backed by the direct map"}
)

// bootstrapLeafSize is the leaf block size used for every region the heap
// grows into. 16 bytes is small enough to satisfy the allocations the Go
// runtime itself tends to make early in bootstrap (small fixed structs),
// while still keeping the free-list bookkeeping (an 8-byte link word per
// free block) well within each leaf.
const bootstrapLeafSize = mem.Size(16)

// growSteps lists the successive region sizes requested while growing the
// heap, in order. Once exhausted, Init keeps requesting mem.Gb regions
// until the frame allocator reports "exhausted".
var growSteps = []mem.Size{8 * mem.PageSize, 64 * mem.PageSize, 16 * mem.Mb}

// Init bootstraps the global heap: it prepares the underlying bump
// allocator over the boot loader's memory map, carves out a single frame
// to seed the first (minimal) buddy region, publishes the buddy set, and
// then keeps growing it with successively larger contiguous runs until the
// frame allocator is exhausted.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	allocator.Init(kernelStart, kernelEnd)

	seed, exact, err := extractRegion(mem.PageSize)
	if err != nil {
		return err
	}
	if !exact || len(seed) != 1 {
		return errHeapBootstrapFailed
	}
	if err := buddySet.AddRegion(seed[0].base, seed[0].size, bootstrapLeafSize); err != nil {
		return err
	}

	for step := 0; ; step++ {
		want := mem.Gb
		if step < len(growSteps) {
			want = growSteps[step]
		}

		ranges, _, err := extractRegion(want)
		if err != nil {
			// The bump allocator is exhausted; the heap is as large as
			// the available physical memory allows.
			break
		}

		for _, r := range ranges {
			if err := buddySet.AddRegion(r.base, r.size, bootstrapLeafSize); err != nil {
				return err
			}
		}
	}

	return nil
}

// Alloc satisfies a heap allocation request of size bytes, returning its
// virtual address through the direct map.
//
//	if buddy-set is initialized:
//	    return buddy-set.alloc(layout) or null
//	if free-frame-cache.try_lock() yields a frame:
//	    convert to virtual and return
//	if frame-alloc yields a frame:
//	    convert to virtual and return
//	return null
func Alloc(size mem.Size) (mem.VirtAddr, *kernel.Error) {
	if buddySet.Initialized() {
		if addr, ok := buddySet.Alloc(size); ok {
			return addr.ToVirt()
		}
		return 0, errHeapOutOfMemory
	}

	if frame, ok := freeCache.Pop(); ok {
		return mem.PhysAddr(frame.Address()).ToVirt()
	}

	if frame, err := allocFrameFn(); err == nil {
		return mem.PhysAddr(frame.Address()).ToVirt()
	}

	return 0, errHeapOutOfMemory
}

// Dealloc returns a previously allocated block to the heap.
//
//	if buddy-set is initialized:
//	    buddy-set.dealloc(ptr, layout); return
//	resolve ptr -> physical; if free-frame-cache.try_lock() succeeds, push; else drop
func Dealloc(addr mem.VirtAddr, size mem.Size) *kernel.Error {
	phys, err := addr.ToPhys()
	if err != nil {
		return errHeapNotDirectMapped
	}

	if buddySet.Initialized() {
		buddySet.Dealloc(phys, size)
		return nil
	}

	freeCache.Push(pmm.FrameFromAddress(uintptr(phys)))
	return nil
}

// extractedRange describes one physically contiguous run of frames pulled
// out of the bump allocator.
type extractedRange struct {
	base mem.PhysAddr
	size mem.Size
}

// extractRegionFn is overridden by heap_test.go.
var extractRegionFn = extractRegionImpl

func extractRegion(size mem.Size) ([]extractedRange, bool, *kernel.Error) {
	return extractRegionFn(size)
}

// extractRegionImpl pulls the first frame from the bump allocator and keeps
// pulling while the next frame is physically contiguous with the previous
// one and the accumulated run is still short of size.
//
// If the accumulated run reaches exactly size, it is returned as a single
// exact range. Otherwise (a discontinuity was hit, or the allocator was
// exhausted) the run is split into the largest power-of-two (>= a frame)
// prefix that fits, plus optionally a second such prefix carved from the
// remainder; any whole frames left over after the two prefixes are pushed
// back into the free-frame cache one frame at a time rather than leaked.
func extractRegionImpl(size mem.Size) ([]extractedRange, bool, *kernel.Error) {
	first, err := allocFrameFn()
	if err != nil {
		return nil, false, err
	}

	base := mem.PhysAddr(first.Address())
	prevAddr := first.Address()
	accumulated := mem.PageSize

	for accumulated < size {
		next, err := allocFrameFn()
		if err != nil {
			break
		}

		if next.Address() != prevAddr+uintptr(mem.PageSize) {
			freeCache.Push(next)
			break
		}

		prevAddr = next.Address()
		accumulated += mem.PageSize
	}

	if accumulated == size {
		return []extractedRange{{base, accumulated}}, true, nil
	}

	return splitIntoPowerOfTwoPrefixes(base, accumulated), false, nil
}

func splitIntoPowerOfTwoPrefixes(base mem.PhysAddr, total mem.Size) []extractedRange {
	var ranges []extractedRange

	remainingBase, remaining := base, total
	for i := 0; i < 2 && remaining >= mem.PageSize; i++ {
		prefix := largestPowerOfTwo(remaining)
		ranges = append(ranges, extractedRange{remainingBase, prefix})
		remainingBase = remainingBase.Offset(uintptr(prefix))
		remaining -= prefix
	}

	for remaining >= mem.PageSize {
		freeCache.Push(pmm.FrameFromAddress(uintptr(remainingBase)))
		remainingBase = remainingBase.Offset(uintptr(mem.PageSize))
		remaining -= mem.PageSize
	}

	return ranges
}

func largestPowerOfTwo(size mem.Size) mem.Size {
	p := mem.PageSize
	for p*2 <= size {
		p *= 2
	}
	return p
}
