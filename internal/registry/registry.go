// Package registry resolves the configured fingerprint terminals.
//
// The device list is a single string of comma separated entries in the form
// "name|host:port". The name and port are optional; a missing port uses the
// configured default and a missing name becomes "host:port". Malformed
// entries are logged and skipped.
package registry

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"punchsync/internal/config"
	"punchsync/internal/logging"
	"punchsync/internal/services"
)

// DefaultPort is the standard terminal port.
const DefaultPort = 4370

// Device describes one configured terminal.
type Device struct {
	Name string `json:"name" validate:"required,max=64"`
	Host string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port int    `json:"port" validate:"min=1,max=65535"`
}

// Address returns host:port.
func (d Device) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Registry holds the devices parsed at startup.
type Registry struct {
	devices []Device
}

// New parses list once. defaultPort <= 0 means DefaultPort.
func New(list string, defaultPort int, logger *slog.Logger) *Registry {
	return &Registry{devices: Parse(list, defaultPort, logger)}
}

// FromConfig builds the registry from the devices section.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	if cfg == nil {
		return &Registry{}
	}
	return New(cfg.Devices.List, cfg.Devices.DefaultPort, logger)
}

// Devices returns the configured devices in list order.
func (r *Registry) Devices() []Device {
	if r == nil {
		return nil
	}
	out := make([]Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// Len returns the number of configured devices.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.devices)
}

// Lookup finds a device by name (case-insensitive) or by host:port.
func (r *Registry) Lookup(key string) (Device, bool) {
	key = strings.TrimSpace(key)
	if r == nil || key == "" {
		return Device{}, false
	}
	for _, d := range r.devices {
		if strings.EqualFold(d.Name, key) || d.Address() == key {
			return d, true
		}
	}
	return Device{}, false
}

// Parse splits the device list into validated descriptors.
func Parse(list string, defaultPort int, logger *slog.Logger) []Device {
	logger = logging.NewComponentLogger(logger, "registry")
	if defaultPort <= 0 {
		defaultPort = DefaultPort
	}
	list = strings.TrimSpace(list)
	if list == "" {
		logging.WarnWithContext(logger, "no terminals configured", "no_devices",
			logging.String(logging.FieldErrorHint, "set devices.list or PUNCHSYNC_DEVICES"),
			logging.String(logging.FieldImpact, "sync has nothing to poll"),
		)
		return nil
	}

	var devices []Device
	seen := map[string]struct{}{}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		device, err := ParseEntry(entry, defaultPort)
		if err != nil {
			logging.WarnWithContext(logger, "skipping malformed device entry", "device_entry_invalid",
				logging.String("entry", entry),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "use name|host:port"),
				logging.String(logging.FieldImpact, "terminal will not be synced"),
			)
			continue
		}
		// Device names key the raw punch log, so they must be unique.
		key := strings.ToLower(device.Name)
		if _, dup := seen[key]; dup {
			logging.WarnWithContext(logger, "skipping duplicate device name", "device_entry_duplicate",
				logging.String(logging.FieldDevice, device.Name),
				logging.String(logging.FieldErrorHint, "give each terminal a distinct name"),
			)
			continue
		}
		seen[key] = struct{}{}
		devices = append(devices, device)
	}
	logger.Debug("parsed device list", logging.Int("devices", len(devices)))
	return devices
}

// ParseEntry parses one "name|host:port" entry.
func ParseEntry(entry string, defaultPort int) (Device, error) {
	entry = strings.TrimSpace(entry)
	var name, address string
	if before, after, ok := strings.Cut(entry, "|"); ok {
		name = strings.TrimSpace(before)
		address = strings.TrimSpace(after)
	} else {
		address = entry
	}
	if address == "" {
		return Device{}, services.Wrap(services.ErrConfiguration, "registry", "parse", "missing address", nil)
	}

	host := address
	port := defaultPort
	if strings.Contains(address, ":") {
		h, p, err := net.SplitHostPort(address)
		if err != nil {
			return Device{}, services.Wrap(services.ErrConfiguration, "registry", "parse", fmt.Sprintf("address %q", address), err)
		}
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return Device{}, services.Wrap(services.ErrConfiguration, "registry", "parse", fmt.Sprintf("port %q is not a number", p), nil)
		}
		host, port = h, parsed
	}

	device := Device{Name: name, Host: strings.TrimSpace(host), Port: port}
	if device.Name == "" && device.Host != "" {
		device.Name = device.Address()
	}
	if err := services.ValidateStruct("registry", device); err != nil {
		return Device{}, err
	}
	return device, nil
}
