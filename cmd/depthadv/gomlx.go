package main

// Include the GoMLX backend: XLA if available, the pure-Go simplego backend
// otherwise.

import (
	_ "github.com/gomlx/gomlx/backends/default"
)
