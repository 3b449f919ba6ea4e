package serialplot

import (
	"slices"

	gobug "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// NoPortsAvailable is the placeholder a presentation layer shows when the
// system has no serial ports. Start rejects it like an empty port name.
const NoPortsAvailable = "No ports available"

var (
	getPortsList         = gobug.GetPortsList
	getDetailedPortsList = enumerator.GetDetailedPortsList
)

// AvailablePorts lists serial port names in sorted order. An empty list is
// not an error.
func AvailablePorts() ([]string, error) {
	ports, err := getPortsList()
	if err != nil {
		return nil, err
	}
	if ports == nil {
		ports = []string{}
	}
	slices.Sort(ports)
	return ports, nil
}

// PortChoices is AvailablePorts for selection widgets: with no ports it
// returns the single NoPortsAvailable placeholder.
func PortChoices() ([]string, error) {
	ports, err := AvailablePorts()
	if err != nil {
		return []string{NoPortsAvailable}, err
	}
	if len(ports) == 0 {
		return []string{NoPortsAvailable}, nil
	}
	return ports, nil
}

// PortInfo describes a port including USB identity when known.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// DetailedPorts lists ports with USB details, sorted by name.
func DetailedPorts() ([]PortInfo, error) {
	details, err := getDetailedPortsList()
	if err != nil {
		return nil, err
	}
	out := make([]PortInfo, 0, len(details))
	for _, d := range details {
		out = append(out, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	slices.SortFunc(out, func(a, b PortInfo) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out, nil
}
