//go:build windows

package main

import "os"

// Windows has no SIGTERM delivery for arbitrary processes; Kill is the
// only reliable stop.
var gracefulSignal os.Signal = os.Kill
