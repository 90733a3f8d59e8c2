//go:build (rp2040 || rp2350) && !lens

package main

import "lensbus/protocol"

const role = protocol.RoleInitiator
