//go:build !linux && !darwin

package main

import "github.com/cyberinferno/folioserve/logger"

func raiseFileLimit(log logger.Logger) {
	log.Warn("raising the open file limit is not supported on this platform")
}
