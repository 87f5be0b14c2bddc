//go:build !linux
// +build !linux

package beacon

import "syscall"

func controlBroadcast(network, address string, c syscall.RawConn) error { return nil }
