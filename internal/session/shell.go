package session

import "os"

// resolveShell picks the shell for a new session: the explicit request
// wins, then the configured default, then bash if installed, then $SHELL,
// then sh.
func resolveShell(requested, configured string) string {
	if requested != "" {
		return requested
	}
	if configured != "" {
		return configured
	}
	for _, p := range []string{"/bin/bash", "/usr/bin/bash", "/usr/local/bin/bash"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "/bin/sh"
}

// resolveWorkingDir defaults the working directory to $HOME, then /tmp.
func resolveWorkingDir(requested string) string {
	if requested != "" {
		return requested
	}
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	return "/tmp"
}
