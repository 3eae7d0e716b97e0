package main

import "kestrel/kernel/kmain"

// multibootInfoPtr is populated by the boot loader's rt0 trampoline before
// jumping here; it is declared as a package-level variable (instead of
// being passed straight through from the assembly call site) solely to
// keep the compiler from inlining main away as dead code.
var multibootInfoPtr, kernelStart, kernelEnd uintptr

// main is the Go entry point the rt0 boot assembly calls once it has set
// up long mode, a GDT good enough to run Go code on, and a stack large
// enough for kmain.Kmain's own initialization. It never returns.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
