//go:build windows

package signals

import "os"

var interruptSignals = []os.Signal{os.Interrupt}
