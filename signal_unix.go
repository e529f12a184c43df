//go:build !windows

package main

import (
	"os"
	"syscall"
)

// gracefulSignal asks a supervised process to shut down cleanly.
var gracefulSignal os.Signal = syscall.SIGTERM
