package classify

import (
	"slices"
	"strings"
)

// Service names a well-known TCP port.
type Service struct {
	Port int
	Name string
}

// ServiceTable maps well-known ports to service names, ordered by port.
// The zero value is an empty table. Tables are never mutated after
// construction; With returns a copy.
type ServiceTable struct {
	services []Service
}

var defaultServices = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	67:    "DHCP",
	80:    "HTTP",
	123:   "NTP",
	139:   "NetBIOS",
	161:   "SNMP",
	443:   "HTTPS",
	445:   "SMB",
	1080:  "Security Camera",
	1883:  "Smart Home Device",
	1900:  "UPNP Device",
	3389:  "RDP",
	5228:  "Android Device",
	5353:  "Apple Device",
	5900:  "VNC",
	7000:  "Apple Device",
	8009:  "Chromecast",
	8060:  "Roku Device",
	8080:  "HTTP-Proxy",
	9000:  "Android ADB",
	9100:  "Printer",
	62078: "Apple Device",
}

// DefaultServiceTable returns the built-in port table.
func DefaultServiceTable() ServiceTable {
	return NewServiceTable(defaultServices)
}

// NewServiceTable builds a table from a port to name map. Entries with an
// empty name or a port outside 1-65535 are skipped.
func NewServiceTable(m map[int]string) ServiceTable {
	services := make([]Service, 0, len(m))
	for port, name := range m {
		name = strings.TrimSpace(name)
		if name == "" || port < 1 || port > 65535 {
			continue
		}
		services = append(services, Service{Port: port, Name: name})
	}
	slices.SortFunc(services, func(a, b Service) int { return a.Port - b.Port })
	return ServiceTable{services: services}
}

// With returns a new table with overrides added or renamed. An empty name
// removes the port.
func (t ServiceTable) With(overrides map[int]string) ServiceTable {
	merged := make(map[int]string, len(t.services)+len(overrides))
	for _, s := range t.services {
		merged[s.Port] = s.Name
	}
	for port, name := range overrides {
		if strings.TrimSpace(name) == "" {
			delete(merged, port)
			continue
		}
		merged[port] = name
	}
	return NewServiceTable(merged)
}

// Services returns the entries in ascending port order.
func (t ServiceTable) Services() []Service {
	return slices.Clone(t.services)
}

// Lookup returns the service name for port.
func (t ServiceTable) Lookup(port int) (string, bool) {
	i, found := slices.BinarySearchFunc(t.services, port, func(s Service, p int) int { return s.Port - p })
	if !found {
		return "", false
	}
	return t.services[i].Name, true
}

// Len returns the number of entries.
func (t ServiceTable) Len() int { return len(t.services) }
