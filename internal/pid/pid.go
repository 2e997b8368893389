package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/imuctl/internal/errors"
)

const pidSuffix = ".pid"

// Path returns the PID file that guards device inside dir. An empty dir
// means os.TempDir().
func Path(dir, device string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '@', ' ':
			return '-'
		}
		return r
	}, device)
	return filepath.Join(dir, "imuctl-"+name+pidSuffix)
}

// Write claims device for the current process. It fails with
// ErrAlreadyRunning while another live process holds the claim; stale or
// unreadable PID files are replaced.
func Write(dir, device string) error {
	errFactory := errors.New()
	path := Path(dir, device)

	if bytes, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Device string
				PID    int
			}{
				Device: device,
				PID:    pid,
			})
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove releases the claim on device.
func Remove(dir, device string) error {
	errFactory := errors.New()
	path := Path(dir, device)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
