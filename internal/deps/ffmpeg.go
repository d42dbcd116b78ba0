// Package deps checks the external tools vconv executes.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Status reports whether an external tool the engine runs can be executed.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Summary renders the status for a single log field or status line.
func (s Status) Summary() string {
	if s.Available {
		return s.Command
	}
	if s.Detail != "" {
		return "unavailable: " + s.Detail
	}
	return "unavailable"
}

// CheckFFmpeg reports the ffmpeg binary the engine will execute. An explicit
// path is checked for executability; a bare name is resolved from PATH.
func CheckFFmpeg(binary string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Required for conversion and thumbnails",
	}
	command := strings.TrimSpace(binary)
	if command == "" {
		command = "ffmpeg"
	}
	result.Command = command

	if strings.ContainsRune(command, os.PathSeparator) {
		info, err := os.Stat(command)
		if err != nil {
			result.Detail = fmt.Sprintf("binary %q not found", command)
			return result
		}
		if !isExecutable(info) {
			result.Detail = fmt.Sprintf("binary %q is not executable", command)
			return result
		}
		result.Available = true
		return result
	}

	resolved, err := exec.LookPath(command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", command)
		return result
	}
	result.Command = resolved
	result.Available = true
	return result
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
