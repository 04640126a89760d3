package storage

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLocked is returned when another run holds a live lock.
var ErrLocked = errors.New("another run is active")

// Lock takes an exclusive lock file at path. A lock older than ttl is treated
// as abandoned and reclaimed. The returned release func removes the file.
func Lock(path string, ttl time.Duration) (func(), error) {
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = fmt.Fprintf(f, `{"pid":%d,"time":%d}`+"\n", os.Getpid(), time.Now().Unix())
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}

		fi, err := os.Stat(path)
		if err != nil {
			// released between open and stat
			continue
		}
		if time.Since(fi.ModTime()) >= ttl {
			reclaimStale(path, fi)
			continue
		}
		return nil, fmt.Errorf("%w: lock %s held since %s", ErrLocked, path, fi.ModTime().Format(time.RFC3339))
	}
	return nil, fmt.Errorf("%w: could not acquire %s", ErrLocked, path)
}

// reclaimStale removes the lock at path only if it is still the file seen
// as stale. A lock re-created by another process in the meantime stays.
func reclaimStale(path string, seen os.FileInfo) {
	cur, err := os.Stat(path)
	if err != nil || !os.SameFile(cur, seen) || !cur.ModTime().Equal(seen.ModTime()) {
		return
	}
	_ = os.Remove(path)
}
