// Package testprogs holds stand-ins for the three worked example user
// programs from original_source (userspace_prog_1, userspace_prog_2 and a
// "hello" program). The originals are tiny freestanding binaries that loop
// issuing one syscall each; without an assembler in this module they can't
// be built into bootable images, so they're kept here as plain Go functions
// that exercise the same syscall numbers through syscall.Invoke, the way a
// real instance of them would reach the dispatch table via SYSCALL.
package testprogs

import (
	"kestrel/kernel/syscall"
	"unsafe"
)

func addrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

// UserspaceProg1 mirrors original_source's userspace_prog_1: issue syscall
// 0x595ca11a and return its result.
func UserspaceProg1() uint64 {
	return syscall.Invoke(syscall.SysDemo2, 0, 0, 0, 0)
}

// UserspaceProg2 mirrors original_source's userspace_prog_2: issue syscall
// 0x595ca11b and return its result.
func UserspaceProg2() uint64 {
	return syscall.Invoke(syscall.SysDemo3, 0, 0, 0, 0)
}

// Hello mirrors original_source's "hello" program: print a string via the
// PRINT syscall (0x1337) and then issue the demo syscall 0x42.
func Hello() uint64 {
	msg := []byte("hello from userspace\n")
	syscall.Invoke(syscall.SysPrint, uint64(addrOf(msg)), uint64(len(msg)), 0, 0)
	return syscall.Invoke(syscall.SysDemo1, 0, 0, 0, 0)
}
