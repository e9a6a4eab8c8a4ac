//go:build linux

package transport

import "github.com/jochenvg/go-udev"

// DiscoverPorts enumerates tty devices currently present on the system via
// udev. It is used only when config.Serial.Ports is empty: an explicitly
// configured port list always takes priority and this function is never
// consulted in that case.
func DiscoverPorts() ([]string, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("tty"); err != nil {
		return nil, err
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		// udev also reports pure kernel-internal ttys (ttyS* without a
		// backing UART, pts/*); restrict to devices udev actually tagged
		// with a parent that has an id_vendor or id_model, i.e. real
		// USB-serial adapters and the like.
		if d.PropertyValue("ID_VENDOR_ID") == "" && d.PropertyValue("ID_MODEL_ID") == "" {
			continue
		}
		ports = append(ports, node)
	}
	return ports, nil
}
