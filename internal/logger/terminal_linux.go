//go:build linux

package logger

// TCGETS
const ioctlTermiosGet = 0x5401
