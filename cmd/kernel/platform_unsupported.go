//go:build !qemuvirt
// +build !qemuvirt

package main

// Stub file to ensure compiling the kernel command fails if no platform
// tag is specified — this build only targets the QEMU virt machine
// layout main.go's uartPhysBase and boot.Config wiring assume.
//
// compileError_PLATFORM_NOT_SPECIFIED is deliberately undefined: the build
// fails with "undefined: compileError_PLATFORM_NOT_SPECIFIED".
func init() {
	compileError_PLATFORM_NOT_SPECIFIED()
}
