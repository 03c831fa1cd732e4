// Package systemd tells the service manager about the server's state
package systemd

import (
	"fmt"
	"sync"

	"github.com/corsserve/corsserve/fs"
	"github.com/coreos/go-systemd/v22/daemon"
)

// sdNotify is daemon.SdNotify, swapped in tests
var sdNotify = daemon.SdNotify

// Notify systemd that the service is ready. This returns a function
// which should be called to notify that the service is stopping. It
// is safe to call more than once.
//
// Outside systemd both notifications are no-ops.
func Notify() func() {
	if _, err := sdNotify(false, daemon.SdNotifyReady); err != nil {
		fs.Errorf(nil, "failed to notify ready to systemd: %v", err)
	}
	var finaliseOnce sync.Once
	return func() {
		finaliseOnce.Do(func() {
			if _, err := sdNotify(false, daemon.SdNotifyStopping); err != nil {
				fs.Errorf(nil, "failed to notify stopping to systemd: %v", err)
			}
		})
	}
}

// UpdateStatus updates the systemd status
func UpdateStatus(status string) error {
	systemdStatus := fmt.Sprintf("STATUS=%s", status)
	_, err := sdNotify(false, systemdStatus)
	return err
}
