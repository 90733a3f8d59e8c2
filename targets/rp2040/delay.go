//go:build rp2040 || rp2350

package main

import (
	"time"

	"tinygo.org/x/drivers/delay"
)

// hwDelay busy-waits short delays with cycle accuracy
type hwDelay struct{}

func (hwDelay) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	delay.Sleep(d)
}
