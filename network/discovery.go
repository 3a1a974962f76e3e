// Package network implements the network transport: mDNS discovery of the
// robot's advertised service with a direct-hostname fallback, and a WebSocket
// command channel.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"hexapodctl/models"
	"hexapodctl/transport"
)

const (
	// DefaultService is the mDNS service type the robot advertises under.
	DefaultService = "_http._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultHostname is the robot's well-known hostname, used for the
	// direct-resolution fallback when no service record is found.
	DefaultHostname = "robot-spider.local"
	// DefaultInstanceFilter matches advertised instance or host names.
	DefaultInstanceFilter = "robot-spider"
	// DefaultPort is used when no service record specifies a port.
	DefaultPort = 8080
	// DefaultScanTimeout bounds each discovery attempt made by Watch.
	DefaultScanTimeout = 3 * time.Second
)

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
type lookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// DiscoveryConfig controls how the robot's service is located.
type DiscoveryConfig struct {
	Service        string
	Domain         string
	Hostname       string
	InstanceFilter string
	Port           int
	ScanTimeout    time.Duration
	Logger         *slog.Logger

	browseFn browseFunc
	lookupFn lookupFunc
}

func (c DiscoveryConfig) withDefaults() DiscoveryConfig {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.Hostname == "" {
		out.Hostname = DefaultHostname
	}
	if out.InstanceFilter == "" {
		out.InstanceFilter = DefaultInstanceFilter
	}
	if out.Port <= 0 {
		out.Port = DefaultPort
	}
	if out.ScanTimeout <= 0 {
		out.ScanTimeout = DefaultScanTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.lookupFn == nil {
		out.lookupFn = func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		}
	}
	return out
}

// Discovery locates the robot over the local network.
type Discovery struct {
	cfg    DiscoveryConfig
	browse browseFunc
	lookup lookupFunc
	logger *slog.Logger
}

// NewDiscovery creates a network discovery service.
func NewDiscovery(config DiscoveryConfig) (*Discovery, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mDNS resolver: %w", err)
		}
		browse = resolver.Browse
	}

	return &Discovery{
		cfg:    cfg,
		browse: browse,
		lookup: cfg.lookupFn,
		logger: cfg.Logger,
	}, nil
}

// DiscoverOnce makes one bounded attempt to locate the robot. The mDNS browse
// and the direct-hostname fallback are each given their own timeout budget.
// Returns transport.ErrNotFound when nothing answers in time.
func (d *Discovery) DiscoverOnce(ctx context.Context, timeout time.Duration) (models.Device, error) {
	device, err := d.browseOnce(ctx, timeout)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, transport.ErrNotFound) {
		d.logger.Warn("mDNS browse failed, trying direct lookup",
			"service", d.cfg.Service, "error", err)
	}

	return d.resolveDirect(ctx, timeout)
}

// Watch re-runs DiscoverOnce every interval until ctx is cancelled.
func (d *Discovery) Watch(ctx context.Context, interval time.Duration) <-chan transport.DiscoveryResult {
	return transport.RunWatch(ctx, interval, func(ctx context.Context) (models.Device, error) {
		return d.DiscoverOnce(ctx, d.cfg.ScanTimeout)
	})
}

func (d *Discovery) browseOnce(ctx context.Context, timeout time.Duration) (models.Device, error) {
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	found := make(chan models.Device, 1)
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-browseCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				device, ok := d.matchEntry(entry)
				if !ok {
					continue
				}
				select {
				case found <- device:
				default:
				}
				// First fully resolved entry wins; stop browsing.
				cancel()
			}
		}
	}()

	if err := d.browse(browseCtx, d.cfg.Service, d.cfg.Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return models.Device{}, fmt.Errorf("browse %s: %w", d.cfg.Service, err)
	}

	<-browseCtx.Done()
	<-collectorDone

	select {
	case device := <-found:
		return device, nil
	default:
		return models.Device{}, transport.ErrNotFound
	}
}

func (d *Discovery) resolveDirect(ctx context.Context, timeout time.Duration) (models.Device, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ips, err := d.lookup(lookupCtx, d.cfg.Hostname)
	if err != nil {
		return models.Device{}, fmt.Errorf("resolve %q: %w", d.cfg.Hostname, err)
	}

	for _, ip := range ips {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		name := strings.TrimSuffix(d.cfg.Hostname, ".local")
		return models.NewDevice(name, v4.String(), d.cfg.Port), nil
	}

	return models.Device{}, transport.ErrNotFound
}

func (d *Discovery) matchEntry(entry *zeroconf.ServiceEntry) (models.Device, bool) {
	if !strings.Contains(entry.Instance, d.cfg.InstanceFilter) &&
		!strings.Contains(entry.HostName, d.cfg.InstanceFilter) {
		return models.Device{}, false
	}

	var address string
	for _, ip := range entry.AddrIPv4 {
		if ip == nil {
			continue
		}
		if v4 := ip.To4(); v4 != nil {
			address = v4.String()
			break
		}
	}
	if address == "" {
		return models.Device{}, false
	}

	port := entry.Port
	if port <= 0 {
		port = d.cfg.Port
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}

	return models.NewDevice(name, address, port), true
}
