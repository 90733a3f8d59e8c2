//go:build (rp2040 || rp2350) && !legacy

package main

const legacyBoard = false
