package gdt

import (
	"testing"
	"unsafe"
)

func TestInitBuildsExpectedTable(t *testing.T) {
	var gotDescriptorAddr uintptr
	var gotCodeSelector, gotDataSelector uint16
	var gotTSSSelector uint16

	loadGDTFn = func(descriptorAddr uintptr, codeSelector, dataSelector uint16) {
		gotDescriptorAddr = descriptorAddr
		gotCodeSelector = codeSelector
		gotDataSelector = dataSelector
	}
	loadTSSFn = func(selector uint16) {
		gotTSSSelector = selector
	}
	defer func() {
		loadGDTFn = loadGDT
		loadTSSFn = loadTSS
	}()

	Init()

	if gotCodeSelector != KernelCodeSelector {
		t.Fatalf("expected code selector 0x%x, got 0x%x", KernelCodeSelector, gotCodeSelector)
	}
	if gotDataSelector != KernelDataSelector {
		t.Fatalf("expected data selector 0x%x, got 0x%x", KernelDataSelector, gotDataSelector)
	}
	if gotTSSSelector != TSSSelector {
		t.Fatalf("expected TSS selector 0x%x, got 0x%x", TSSSelector, gotTSSSelector)
	}
	if gotDescriptorAddr != uintptr(unsafe.Pointer(&descriptor)) {
		t.Fatalf("expected descriptor address %p, got 0x%x", &descriptor, gotDescriptorAddr)
	}

	if table[0] != 0 {
		t.Fatalf("expected null descriptor, got 0x%x", table[0])
	}

	// Access byte is bits 40-47 of the packed entry.
	accessByte := func(e gdtEntry) uint8 { return uint8(e >> 40) }

	if got := accessByte(table[1]); got != 0x9A {
		t.Fatalf("expected kernel code access byte 0x9A, got 0x%x", got)
	}
	if got := accessByte(table[2]); got != 0x92 {
		t.Fatalf("expected kernel data access byte 0x92, got 0x%x", got)
	}
	if got := accessByte(table[5]); got != 0xF2 {
		t.Fatalf("expected user data access byte 0xF2, got 0x%x", got)
	}
	if got := accessByte(table[6]); got != 0xFA {
		t.Fatalf("expected user code access byte 0xFA, got 0x%x", got)
	}

	if descriptor.limit != uint16(unsafe.Sizeof(table)-1) {
		t.Fatalf("expected descriptor limit %d, got %d", unsafe.Sizeof(table)-1, descriptor.limit)
	}
}

func TestSelectorConstantsMatchDocumentedLayout(t *testing.T) {
	if KernelCodeSelector != 0x08 {
		t.Fatalf("KernelCodeSelector changed: 0x%x", KernelCodeSelector)
	}
	if KernelDataSelector != 0x10 {
		t.Fatalf("KernelDataSelector changed: 0x%x", KernelDataSelector)
	}
	if TSSSelector != 0x18 {
		t.Fatalf("TSSSelector changed: 0x%x", TSSSelector)
	}
	if UserDataSelectorRPL3 != 0x2B {
		t.Fatalf("UserDataSelectorRPL3 changed: 0x%x", UserDataSelectorRPL3)
	}
	if UserCodeSelectorRPL3 != 0x33 {
		t.Fatalf("UserCodeSelectorRPL3 changed: 0x%x", UserCodeSelectorRPL3)
	}
}
