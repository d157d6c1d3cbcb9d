package dylibgraph

import (
	"sync"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
)

var logMutex sync.Mutex
var isQuiet bool

func init() {
	color.Output = colorable.NewColorableStderr()
}

// LogInit configures colorization and verbosity for the package-wide logger.
func LogInit(noColor, quiet bool) {
	color.NoColor = noColor
	isQuiet = quiet
}

// LogError logs an error-level diagnostic (e.g. a finalize failure dump).
func LogError(format string, args ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	color.Red(format, args...)
}

// LogWarn logs a warning-level diagnostic (copy-slot conflicts, basename
// guesses during finalize, ambiguous-candidate choices).
func LogWarn(format string, args ...interface{}) {
	logMutex.Lock()
	defer logMutex.Unlock()
	color.Yellow(format, args...)
}

// LogInfo logs an info-level diagnostic, suppressed when quiet.
func LogInfo(format string, args ...interface{}) {
	if isQuiet {
		return
	}
	logMutex.Lock()
	defer logMutex.Unlock()
	color.Green(format, args...)
}

// LogNote logs a low-priority diagnostic, suppressed when quiet.
func LogNote(format string, args ...interface{}) {
	if isQuiet {
		return
	}
	logMutex.Lock()
	defer logMutex.Unlock()
	color.Magenta(format, args...)
}
