package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tophat-core/internal/device"
	"github.com/nerrad567/tophat-core/internal/devices/nfc"
	"github.com/nerrad567/tophat-core/internal/devices/pixels"
	"github.com/nerrad567/tophat-core/internal/devices/printer"
	"github.com/nerrad567/tophat-core/internal/devices/switches"
	"github.com/nerrad567/tophat-core/internal/proxy"
)

// DeviceView is the API representation of a registered device.
type DeviceView struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Commands []device.Tag `json:"commands"`
	Proxy    *ProxyView   `json:"proxy,omitempty"`
}

// ProxyView describes the owner socket behind a proxied device.
type ProxyView struct {
	SocketPath string `json:"socket_path"`
	Reachable  bool   `json:"reachable"`
}

func deviceView(d device.Device) DeviceView {
	v := DeviceView{
		Name:     d.Name(),
		Type:     deviceType(d),
		Commands: d.SupportedCommands().Sorted(),
	}
	if p, ok := d.(*proxy.Device); ok {
		v.Proxy = &ProxyView{
			SocketPath: p.SocketPath(),
			Reachable:  proxy.Probe(p.SocketPath()) == nil,
		}
	}
	return v
}

func deviceType(d device.Device) string {
	switch d.(type) {
	case *printer.Printer:
		return "printer"
	case *switches.Switch:
		return "switch"
	case *pixels.Pixels:
		return "pixels"
	case *nfc.Reader:
		return "nfc"
	case *proxy.Device:
		return "proxy"
	default:
		return "custom"
	}
}

// handleListDevices returns all registered devices.
//
// Query parameters:
//   - command: only devices that accept this command tag
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	tag := device.Tag(r.URL.Query().Get("command"))

	devices := make([]DeviceView, 0, s.registry.Len())
	for _, e := range s.registry.List() {
		if tag != "" && !e.Device.SupportedCommands().Has(tag) {
			continue
		}
		devices = append(devices, deviceView(e.Device))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	entry, err := s.registry.Lookup(name)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, deviceView(entry.Device))
}

// handleListHats returns the state of every hat container.
func (s *Server) handleListHats(w http.ResponseWriter, _ *http.Request) {
	if s.hats == nil {
		writeUnavailable(w, "sandbox not configured")
		return
	}
	hats := s.hats.Status()
	writeJSON(w, http.StatusOK, map[string]any{"hats": hats, "count": len(hats)})
}

// handleListOwners returns the supervised owner processes.
func (s *Server) handleListOwners(w http.ResponseWriter, _ *http.Request) {
	if s.owners == nil {
		writeJSON(w, http.StatusOK, map[string]any{"owners": []any{}, "count": 0})
		return
	}
	owners := s.owners.Stats()
	writeJSON(w, http.StatusOK, map[string]any{"owners": owners, "count": len(owners)})
}
