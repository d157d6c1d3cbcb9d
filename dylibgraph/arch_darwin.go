//go:build darwin

package dylibgraph

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// hostIsARM64 gates ad-hoc signing. The compiled architecture is authoritative for this decision,
// matching cx_Freeze's platform.machine() check.
func hostIsARM64() bool {
	return runtime.GOARCH == "arm64"
}

// hostMachineString reports the kernel's machine string for diagnostics,
// via the same uname(2) syscall golang.org/x/sys/unix already exposes
// elsewhere in the dependency tree.
func hostMachineString() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return runtime.GOARCH
	}
	return cstringFromBytes(uts.Machine[:])
}

func cstringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
