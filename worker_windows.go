package main

import (
	"github.com/vearne/capsync/config"
	slog "github.com/vearne/simplelog"
)

// runWorker refuses: windows sessions always capture in-process.
func runWorker(s *config.Settings) int {
	slog.Error("worker mode unsupported on windows (-Z %d)", s.ChildFD)
	return 2
}
