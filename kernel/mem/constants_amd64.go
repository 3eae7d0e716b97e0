// +build amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = 3

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// DirectMapBase is the virtual address that physical address 0 is
	// mapped to. The boot loader identity-maps and direct-maps the low
	// 4 GiB of physical memory here before handing control to Kmain; see
	// the boot contract in SPEC_FULL.md §6.
	DirectMapBase = uintptr(0xC0000000)

	// DirectMapLimit is the exclusive upper bound of the physical
	// address range reachable through the direct map.
	DirectMapLimit = uintptr(4) * uintptr(Gb)
)
