package device

import (
	"io"
	"kestrel/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. Diagnostic output is
	// written to w, which the HAL prefixes with the driver's name before
	// wiring it to the active console.
	DriverInit(w io.Writer) *kernel.Error
}

// ProbeFn attempts to detect a particular piece of hardware, returning a
// ready-to-init Driver instance or nil if the hardware is not present.
type ProbeFn func() Driver

// DetectOrder controls the relative order in which probes run. Lower values
// run first.
type DetectOrder int

const (
	// DetectOrderEarly is used by drivers that other probes depend on.
	DetectOrderEarly DetectOrder = iota

	// DetectOrderBeforeACPI is used by drivers that should run before the
	// ACPI driver but have no other ordering constraints.
	DetectOrderBeforeACPI

	// DetectOrderACPI is used by the ACPI driver itself.
	DetectOrderACPI

	// DetectOrderLast is used by drivers that should probe after
	// everything else, e.g. because they depend on ACPI tables.
	DetectOrderLast
)

// DriverInfo pairs a probe function with its detection order.
type DriverInfo struct {
	Order DetectOrder
	Probe ProbeFn
}

// DriverInfoList implements sort.Interface, ordering by DetectOrder.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds info to the set of drivers probed by
// kestrel/kernel/hal.DetectHardware. Drivers register themselves from an
// init() function.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the registered driver list.
func DriverList() DriverInfoList {
	return registeredDrivers
}
