//go:build !windows && !plan9
// +build !windows,!plan9

package http

import (
	"net"

	"github.com/corsserve/corsserve/fs"
	"github.com/coreos/go-systemd/v22/activation"
)

func getInheritedListeners() []net.Listener {
	sdListeners, err := activation.Listeners()
	if err != nil {
		fs.Errorf(nil, "go-systemd/activation error: %v", err)
		return nil
	}
	// activation leaves a nil in place of any inherited fd which is
	// not a listening socket
	out := sdListeners[:0]
	for _, l := range sdListeners {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}
