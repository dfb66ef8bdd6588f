package serialport

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// AutoDevice asks Open to pick the first port that looks like a microcontroller.
const AutoDevice = "auto"

// ErrNoDevice is returned when auto-detection finds no candidate port.
var ErrNoDevice = errors.New("no serial device detected")

// Arduino boards and the common CH340 adapter.
var (
	knownVIDs    = []string{"2341", "2A03"}
	knownVIDPIDs = [][2]string{{"1A86", "7523"}}
	namePatterns = []string{"ttyACM", "ttyUSB", "usbmodem", "usbserial", "COM"}
)

// Detect returns the name of the first port that looks like a gate or
// terminal controller: USB ports are matched by vendor/product id first, then
// any port is matched by its name.
func Detect() (string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("enumerate serial ports: %w", err)
	}
	if name := chooseByID(details); name != "" {
		return name, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	if name := chooseByName(names); name != "" {
		return name, nil
	}
	return "", ErrNoDevice
}

func chooseByID(ports []*enumerator.PortDetails) string {
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		for _, vid := range knownVIDs {
			if strings.EqualFold(p.VID, vid) {
				return p.Name
			}
		}
		for _, id := range knownVIDPIDs {
			if strings.EqualFold(p.VID, id[0]) && strings.EqualFold(p.PID, id[1]) {
				return p.Name
			}
		}
	}
	return ""
}

func chooseByName(names []string) string {
	for _, name := range names {
		for _, pattern := range namePatterns {
			if strings.Contains(name, pattern) {
				return name
			}
		}
	}
	return ""
}
