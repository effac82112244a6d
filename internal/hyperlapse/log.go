package hyperlapse

import "log"

// Logf is the package diagnostic logger. Elevation fallbacks and other
// absorbed failures are reported here.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil mutes the package.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
