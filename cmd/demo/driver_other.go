//go:build !windows

package main

import (
	"suinput/core/drivers/glfw"
	"suinput/core/internal/logger"
	"suinput/core/session"
)

// addPlatformDriver wires up the cross-platform GLFW driver.
func addPlatformDriver(rt *session.Runtime, log logger.Logger) error {
	return rt.AddDriver(glfw.New(log))
}
