package discovery

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/james226/scene-relay/logging"
)

func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

func TestNewService(t *testing.T) {
	svc, err := newService(Config{
		Instance: "relay-1",
		Service:  "_scene-relay._tcp",
		Port:     3000,
		Host:     "studio",
		IPs:      []net.IP{net.IPv4(192, 168, 1, 20)},
	})
	if err != nil {
		t.Fatalf("newService: %v", err)
	}

	if svc.Instance != "relay-1" || svc.Port != 3000 {
		t.Errorf("service = %+v", svc)
	}
	if svc.HostName != "studio.local." {
		t.Errorf("HostName = %q, want studio.local.", svc.HostName)
	}
	if len(svc.TXT) == 0 || svc.TXT[0] != "scene-relay" {
		t.Errorf("TXT = %v", svc.TXT)
	}
}

func TestNewService_FullyQualifiedHost(t *testing.T) {
	svc, err := newService(Config{
		Instance: "relay-1",
		Service:  "_scene-relay._tcp",
		Port:     3000,
		Host:     "studio.example.",
		IPs:      []net.IP{net.IPv4(10, 0, 0, 1)},
	})
	if err != nil {
		t.Fatalf("newService: %v", err)
	}
	if svc.HostName != "studio.example." {
		t.Errorf("HostName = %q", svc.HostName)
	}
}

func TestNewService_RequiresInstance(t *testing.T) {
	_, err := newService(Config{Service: "_scene-relay._tcp", Port: 3000, Host: "h", IPs: []net.IP{net.IPv4(10, 0, 0, 1)}})
	if err == nil {
		t.Error("expected error for missing instance name")
	}
}

func TestAdvertiser_String(t *testing.T) {
	if got := NewAdvertiser(Config{}).String(); got != "mdns-advertiser" {
		t.Errorf("String() = %q", got)
	}
}

func TestBrowse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A lookup may fail outright in sandboxes without multicast; either way
	// it must return promptly.
	_, _ = Browse(ctx, "_scene-relay._tcp", 50*time.Millisecond)
}
