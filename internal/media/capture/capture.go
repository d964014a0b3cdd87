// Package capture opens real microphone and camera devices.
package capture

import "errors"

var ErrUnsupported = errors.New("capture: device capture is not supported on this platform")
