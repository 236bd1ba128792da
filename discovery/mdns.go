// Package discovery advertises the relay on the local network over mDNS and
// finds other relays doing the same.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	"github.com/james226/scene-relay/logging"
)

type Config struct {
	Instance string
	Service  string
	Port     int

	// Host and IPs are detected from the OS when empty.
	Host string
	IPs  []net.IP
}

// Advertiser is a suture service that answers mDNS queries for the relay
// while it runs.
type Advertiser struct {
	cfg Config
	log zerolog.Logger
}

func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		cfg: cfg,
		log: logging.WithComponent("discovery"),
	}
}

func (a *Advertiser) Serve(ctx context.Context) error {
	service, err := newService(a.cfg)
	if err != nil {
		return err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to start mDNS server: %w", err)
	}
	a.log.Info().
		Str("instance", a.cfg.Instance).
		Str("service", a.cfg.Service).
		Int("port", a.cfg.Port).
		Msg("advertising relay")

	<-ctx.Done()
	if err := server.Shutdown(); err != nil {
		a.log.Warn().Err(err).Msg("mDNS shutdown failed")
	}
	return ctx.Err()
}

func (a *Advertiser) String() string {
	return "mdns-advertiser"
}

func newService(cfg Config) (*mdns.MDNSService, error) {
	host := cfg.Host
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		host = h
	}
	hostName := host
	if !strings.HasSuffix(hostName, ".") {
		hostName += ".local."
	}

	service, err := mdns.NewMDNSService(
		cfg.Instance,
		cfg.Service,
		"",
		hostName,
		cfg.Port,
		cfg.IPs,
		[]string{"scene-relay", "ws=/ws", "upload=/upload"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Browse queries the local network for relays advertising service and
// returns their host:port addresses.
func Browse(ctx context.Context, service string, timeout time.Duration) ([]string, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	var addrs []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() { errCh <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
		// Query stops on its own timeout; wait so entries can be closed safely.
		<-errCh
	}
	close(entries)
	<-done

	if err != nil {
		return nil, fmt.Errorf("mDNS lookup failed: %w", err)
	}
	return addrs, nil
}
