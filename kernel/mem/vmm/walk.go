package vmm

import (
	"kestrel/kernel"
	"kestrel/kernel/mem/pmm"
)

// pageTableWalker is invoked by walk for each page-table level visited while
// resolving a virtual address. It receives the zero-based level index and a
// pointer to the entry at that level. Returning false aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// root, the physical frame backing the top-level (PML4) table of the
// address space being walked. At each level it invokes walkFn with the
// entry that corresponds to virtAddr; if walkFn returns false the walk
// stops immediately without descending further.
//
// Unlike a recursively self-mapped design, each intermediate table is
// reached through the kernel's direct map, so walk works identically for
// the active address space and for an address space that is not currently
// loaded into CR3.
func walk(root pmm.Frame, virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	table, err := tableAt(root)
	if err != nil {
		return err
	}

	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := &table[entryIndex]

		if ok := walkFn(level, pte); !ok {
			return nil
		}

		if level == pageLevels-1 {
			break
		}

		if !pte.HasFlags(FlagPresent) {
			return ErrInvalidMapping
		}

		if table, err = pte.next(); err != nil {
			return err
		}
	}

	return nil
}
