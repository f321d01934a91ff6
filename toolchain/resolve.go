package toolchain

import (
	"fmt"
	"os"
	"os/exec"
)

// Resolve finds a tool binary using the resolution order:
// 1. Explicit path (if non-empty)
// 2. The named environment variable
// 3. fallback looked up in PATH
//
// Explicit and environment values may be bare names, which are looked up in
// PATH as well.
func Resolve(explicit, envVar, fallback string) (string, error) {
	if explicit != "" {
		return lookup(explicit, "specified path")
	}
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return lookup(v, envVar)
		}
	}
	path, err := exec.LookPath(fallback)
	if err != nil {
		if envVar != "" {
			return "", fmt.Errorf("%s not found in PATH; set %s", fallback, envVar)
		}
		return "", fmt.Errorf("%s not found in PATH", fallback)
	}
	return path, nil
}

func lookup(p, source string) (string, error) {
	if _, err := os.Stat(p); err == nil {
		return p, nil
	}
	if path, err := exec.LookPath(p); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found at %s", p, source)
}
