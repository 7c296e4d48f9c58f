//go:build !aarch64
// +build !aarch64

package main

// Stub file to ensure compiling the kernel command fails if no
// architecture tag is specified, rather than silently linking the
// internal/arch generic/simulated register seam into a binary meant to
// run on real hardware. internal/arch's own !aarch64 build exists for
// `go test` on every other package; this kernel command is the one place
// that must never build without a real architecture tag.
//
// compileError_ARCH_NOT_SPECIFIED is deliberately undefined: the build
// fails with "undefined: compileError_ARCH_NOT_SPECIFIED", which names the
// missing build tag directly.
func init() {
	compileError_ARCH_NOT_SPECIFIED()
}
