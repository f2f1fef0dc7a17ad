// Package mdns advertises a running motion builder on the local network.
//
// Advertisement is opt-in. When enabled, phones and laptops on the same LAN
// can find the UI through DNS-SD without typing the robot's address.
//
// The advertisement includes:
//   - Service type: _reachy-remix._tcp
//   - TXT records with the protocol version, instance name and URL path
package mdns

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type of the motion builder.
const ServiceType = "_reachy-remix._tcp"

// ProtocolVersion identifies the TXT record layout.
const ProtocolVersion = "1"

// Config holds configuration for mDNS advertisement.
type Config struct {
	// Port is the HTTP port to advertise.
	Port int

	// Name is the instance name. Defaults to the system hostname.
	Name string

	// Path is the URL path of the UI. Defaults to "/".
	Path string
}

type registerFunc func(instance, service, domain string, port int, text []string) (shutdowner, error)

type shutdowner interface {
	Shutdown()
}

// zeroconfRegister registers on every interface.
func zeroconfRegister(instance, service, domain string, port int, text []string) (shutdowner, error) {
	return zeroconf.Register(instance, service, domain, port, text, nil)
}

// Advertiser manages a single DNS-SD registration.
type Advertiser struct {
	config   Config
	register registerFunc

	mu     sync.Mutex
	server shutdowner
}

// NewAdvertiser creates an advertiser for cfg.
func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{config: cfg, register: zeroconfRegister}
}

// Start registers the service. Calling Start while running is a no-op.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	server, err := a.register(a.instanceName(), ServiceType, "local.", a.config.Port, a.txtRecords())
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	a.server = server
	return nil
}

// Stop unregisters the service. It is safe to call on an advertiser that
// was never started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// IsRunning reports whether the service is registered.
func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func (a *Advertiser) instanceName() string {
	if a.config.Name != "" {
		return a.config.Name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "reachy-remix"
}

func (a *Advertiser) txtRecords() []string {
	path := a.config.Path
	if path == "" {
		path = "/"
	}
	return []string{
		"version=" + ProtocolVersion,
		"name=" + a.instanceName(),
		"path=" + path,
	}
}

// Announcer starts an Advertiser per published URL. Its zero value
// advertises under the hostname.
type Announcer struct {
	Name string
}

// Announce advertises port and path until the returned stop is called.
func (n Announcer) Announce(port int, path string) (stop func(), err error) {
	a := NewAdvertiser(Config{Port: port, Name: n.Name, Path: path})
	if err := a.Start(); err != nil {
		return nil, err
	}
	return a.Stop, nil
}

// DiscoveredHost is a motion builder found on the network.
type DiscoveredHost struct {
	Name    string
	Host    string
	Port    int
	Path    string
	Version string
}

// URL returns the browser URL of h.
func (h DiscoveredHost) URL() string {
	host := h.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	path := h.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s:%d%s", host, h.Port, path)
}

// browseFunc streams entries for service until ctx ends, then closes
// entries.
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mdns resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Discover lists the motion builders that answer before ctx ends, sorted
// by name. Builders with no usable address are skipped.
func Discover(ctx context.Context) ([]DiscoveredHost, error) {
	return discover(ctx, zeroconfBrowse)
}

func discover(ctx context.Context, browse browseFunc) ([]DiscoveredHost, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	byInstance := make(map[string]DiscoveredHost)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for entry := range entries {
			if h := hostFromEntry(entry); h.Host != "" && h.Port > 0 {
				byInstance[entry.Instance] = h
			}
		}
	}()

	if err := browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-collected

	hosts := make([]DiscoveredHost, 0, len(byInstance))
	for _, h := range byInstance {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Name != hosts[j].Name {
			return hosts[i].Name < hosts[j].Name
		}
		return hosts[i].URL() < hosts[j].URL()
	})
	return hosts, nil
}

func hostFromEntry(entry *zeroconf.ServiceEntry) DiscoveredHost {
	h := DiscoveredHost{Name: entry.Instance, Port: entry.Port, Path: "/"}
	switch {
	case len(entry.AddrIPv4) > 0:
		h.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		h.Host = entry.AddrIPv6[0].String()
	}

	for _, txt := range entry.Text {
		key, value, ok := strings.Cut(txt, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case "name":
			h.Name = value
		case "path":
			h.Path = value
		case "version":
			h.Version = value
		}
	}
	return h
}
