//go:build !unix

package render

import "os/exec"

// setProcessGroup is a no-op; only the direct child is killed on cancellation.
func setProcessGroup(*exec.Cmd) {}
