// +build amd64

package vmm

const (
	// pageLevels is the number of page-table levels walked to resolve a
	// virtual address on amd64 (PML4, PDPT, PD, PT).
	pageLevels = 4

	// entriesPerTable is the number of entries in each page-table level.
	entriesPerTable = 512

	// ptePhysPageMask extracts the physical frame address encoded in a
	// page table entry. Bits 12-51 hold the address; the low bits are
	// flags and the high bits (including FlagNoExecute) are excluded.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// kernelPML4Entry is the first PML4 slot dedicated to the kernel's
	// half of the address space. User address spaces are built by
	// copying entries [kernelPML4Entry, entriesPerTable) from the
	// kernel's own top-level table, so both halves observe the same
	// kernel mappings after a context switch.
	kernelPML4Entry = 256
)

var (
	// pageLevelBits defines the number of virtual address bits consumed
	// by each page-table level (9 bits -> 512 entries per level).
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts defines the bit shift required to extract each
	// level's index out of a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set when using 2Mb pages instead of 4K pages.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached entry
	// for this page when switching page tables via CR3.
	FlagGlobal

	// FlagCopyOnWrite is used to implement copy-on-write functionality. This
	// flag and FlagRW are mutually exclusive.
	FlagCopyOnWrite = 1 << 9

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute = 1 << 63
)
