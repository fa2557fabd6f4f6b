package lockfile

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Take acquires an exclusive lock at path, polling once a second until the
// holder goes away. waiting is invoked on each failed attempt so callers can
// report that they're blocked. The lock file records the owner's pid.
func Take(ctx context.Context, path string, waiting func()) (func(), error) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	var (
		f   *os.File
		err error
	)

	for {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			break
		}

		if waiting != nil {
			waiting()
		}

		select {
		case <-tk.C:
			// ok
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()

	closer := func() {
		os.Remove(path)
	}

	return closer, nil
}

// Holder reports the pid recorded in the lock file, if one is held.
func Holder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, true
	}

	return pid, true
}
