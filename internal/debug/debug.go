package debug

import (
	"os"
	"strings"
)

// IsDebuggerAttached returns true if the program is running under a debugger
func IsDebuggerAttached() bool {
	if os.Getenv("VSCODE_DEBUG_MODE") != "" || os.Getenv("DELVE_DEBUGGER") != "" {
		return true
	}
	// dlv builds the binary as __debug_bin*
	return strings.Contains(os.Args[0], "__debug_bin")
}
