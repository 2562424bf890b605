//go:build darwin

package logger

import "syscall"

const ioctlTermiosGet = uintptr(syscall.TIOCGETA)
