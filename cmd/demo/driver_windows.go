//go:build windows

package main

import (
	"suinput/core/drivers/winhid"
	"suinput/core/internal/logger"
	"suinput/core/session"
)

// addPlatformDriver wires up the Windows raw-input hook driver.
func addPlatformDriver(rt *session.Runtime, log logger.Logger) error {
	return rt.AddDriver(winhid.New(log))
}
