// Package devices collects the built-in device types.
package devices

import (
	"fmt"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices/nfc"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/devices/printer"
	"github.com/nerrad567/tophat-core/internal/devices/switches"
)

// Built-in device type names, as used in configuration.
const (
	TypePrinter = "printer"
	TypeSwitch  = "switch"
	TypePixels  = "pixels"
	TypeNFC     = "nfc"
)

// NewCatalog returns a catalog holding every built-in command.
func NewCatalog() (*device.Catalog, error) {
	catalog := device.NewCatalog()
	for _, register := range []func(*device.Catalog) error{
		printer.RegisterCommands,
		switches.RegisterCommands,
		pixels.RegisterCommands,
		nfc.RegisterCommands,
	} {
		if err := register(catalog); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// Tags returns the capability set of a built-in device type.
func Tags(typ string) (device.TagSet, error) {
	switch typ {
	case TypePrinter:
		return printer.Tags(), nil
	case TypeSwitch:
		return switches.Tags(), nil
	case TypePixels:
		return pixels.Tags(), nil
	case TypeNFC:
		return nfc.Tags(), nil
	default:
		return nil, fmt.Errorf("unknown device type %q", typ)
	}
}
