package mdns

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	shutdowns int
}

func (f *fakeServer) Shutdown() { f.shutdowns++ }

type registration struct {
	instance, service, domain string
	port                      int
	text                      []string
}

func fakeRegister(calls *[]registration, srv *fakeServer, err error) registerFunc {
	return func(instance, service, domain string, port int, text []string) (shutdowner, error) {
		*calls = append(*calls, registration{instance, service, domain, port, text})
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
}

func TestAdvertiserStartStop(t *testing.T) {
	var calls []registration
	srv := &fakeServer{}

	a := NewAdvertiser(Config{Port: 7861, Name: "reachy", Path: "/"})
	a.register = fakeRegister(&calls, srv, nil)

	assert.False(t, a.IsRunning())
	require.NoError(t, a.Start())
	require.NoError(t, a.Start())
	assert.True(t, a.IsRunning())

	require.Len(t, calls, 1, "second Start is a no-op")
	assert.Equal(t, "reachy", calls[0].instance)
	assert.Equal(t, ServiceType, calls[0].service)
	assert.Equal(t, "local.", calls[0].domain)
	assert.Equal(t, 7861, calls[0].port)
	assert.Equal(t, []string{"version=1", "name=reachy", "path=/"}, calls[0].text)

	a.Stop()
	a.Stop()
	assert.False(t, a.IsRunning())
	assert.Equal(t, 1, srv.shutdowns)
}

func TestAdvertiserStartError(t *testing.T) {
	var calls []registration
	a := NewAdvertiser(Config{Port: 7860})
	a.register = fakeRegister(&calls, nil, errors.New("no multicast"))

	err := a.Start()
	assert.ErrorContains(t, err, "mdns register: no multicast")
	assert.False(t, a.IsRunning())
}

func TestAdvertiserStopBeforeStart(t *testing.T) {
	a := NewAdvertiser(Config{Port: 7860})
	a.Stop()
	assert.False(t, a.IsRunning())
}

func TestAdvertiserDefaults(t *testing.T) {
	a := NewAdvertiser(Config{Port: 7860})
	assert.NotEmpty(t, a.instanceName())
	assert.Contains(t, a.txtRecords(), "path=/")
}

func TestDiscoveredHostURL(t *testing.T) {
	tests := []struct {
		name string
		host DiscoveredHost
		want string
	}{
		{"ipv4", DiscoveredHost{Host: "192.168.1.20", Port: 7860, Path: "/"}, "http://192.168.1.20:7860/"},
		{"ipv6", DiscoveredHost{Host: "fe80::1", Port: 7861}, "http://[fe80::1]:7861/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.host.URL())
		})
	}
}

func TestHostFromEntry(t *testing.T) {
	entry := zeroconf.NewServiceEntry("kitchen", ServiceType, "local.")
	entry.Port = 7860
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	entry.Text = []string{"version=1", "name=Kitchen Reachy", "path=/", "junk"}

	h := hostFromEntry(entry)
	assert.Equal(t, DiscoveredHost{
		Name:    "Kitchen Reachy",
		Host:    "192.168.1.20",
		Port:    7860,
		Path:    "/",
		Version: "1",
	}, h)
}

func entryAt(instance, ip string, port int, text ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, "local.")
	e.Port = port
	if ip != "" {
		e.AddrIPv4 = []net.IP{net.ParseIP(ip)}
	}
	e.Text = text
	return e
}

func fakeBrowse(found ...*zeroconf.ServiceEntry) browseFunc {
	return func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
		go func() {
			defer close(entries)
			for _, e := range found {
				select {
				case entries <- e:
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}
}

func TestDiscoverCollectsBuilders(t *testing.T) {
	hosts, err := discover(context.Background(), fakeBrowse(
		entryAt("studio", "192.168.1.30", 7861, "name=studio", "version=1"),
		entryAt("kitchen", "192.168.1.20", 7860, "name=kitchen"),
		entryAt("kitchen", "192.168.1.21", 7860, "name=kitchen"),
		entryAt("ghost", "", 7862),
	))
	require.NoError(t, err)

	require.Len(t, hosts, 2)
	assert.Equal(t, "kitchen", hosts[0].Name)
	assert.Equal(t, "http://192.168.1.21:7860/", hosts[0].URL(), "later answer replaces earlier")
	assert.Equal(t, "studio", hosts[1].Name)
	assert.Equal(t, "1", hosts[1].Version)
}

func TestDiscoverNothingFound(t *testing.T) {
	hosts, err := discover(context.Background(), fakeBrowse())
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestDiscoverBrowseError(t *testing.T) {
	browse := func(context.Context, string, string, chan<- *zeroconf.ServiceEntry) error {
		return errors.New("no multicast interface")
	}
	_, err := discover(context.Background(), browse)
	assert.ErrorContains(t, err, "mdns browse")
}

func TestAnnouncerRealRegistration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	stop, err := Announcer{Name: "reachy-remix-test"}.Announce(7860, "/")
	if err != nil {
		t.Skipf("multicast unavailable: %v", err)
	}
	stop()
}
