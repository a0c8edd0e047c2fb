//go:build !unix

package throttle

import (
	"os"
	"sync"
)

// Without flock only writers inside this process are serialized.
var fileMu sync.Mutex

func lockFile(_ *os.File, _ bool) error {
	fileMu.Lock()
	return nil
}

func unlockFile(_ *os.File) error {
	fileMu.Unlock()
	return nil
}
