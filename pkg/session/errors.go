// ABOUTME: Session error taxonomy
// ABOUTME: Handshake failures plus helpers tagging device errors
package session

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/audiosock/pkg/device"
)

var (
	// ErrHandshake means the first inbound message was missing or not a valid Config.
	// No device is opened when it is returned.
	ErrHandshake = errors.New("handshake failed")

	// ErrAlreadyRun is returned when Run is called a second time
	ErrAlreadyRun = errors.New("session already run")
)

// deviceErr makes sure err matches device.ErrDevice
func deviceErr(op string, err error) error {
	if errors.Is(err, device.ErrDevice) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, device.ErrDevice, err)
}
