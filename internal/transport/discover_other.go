//go:build !linux

package transport

import "errors"

// DiscoverPorts is unavailable off Linux; configurations must list
// serial.ports explicitly on those platforms.
func DiscoverPorts() ([]string, error) {
	return nil, errors.New("transport: port autodiscovery is only available on linux")
}
