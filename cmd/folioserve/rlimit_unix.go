//go:build linux || darwin

package main

import (
	"github.com/cyberinferno/folioserve/logger"
	"golang.org/x/sys/unix"
)

// raiseFileLimit lifts the soft RLIMIT_NOFILE to the hard limit. Every open
// connection holds a descriptor and handlers are unbounded by default.
func raiseFileLimit(log logger.Logger) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		log.Warn("failed to read open file limit", logger.Err(err))
		return
	}

	if lim.Cur >= lim.Max {
		log.Debug("open file limit already at maximum", logger.F("limit", lim.Cur))
		return
	}

	prev := lim.Cur
	lim.Cur = lim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		log.Warn("failed to raise open file limit", logger.F("from", prev), logger.F("to", lim.Max), logger.Err(err))
		return
	}

	log.Info("raised open file limit", logger.F("from", prev), logger.F("to", lim.Cur))
}
