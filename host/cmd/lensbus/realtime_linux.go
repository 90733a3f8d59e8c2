//go:build linux

package main

import "golang.org/x/sys/unix"

// lockMemory keeps every page resident so a bit-banged frame is not
// stretched by a page fault
func lockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
