package domain

import (
	"testing"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	domainErr, ok := apperrors.As(err)
	if !ok {
		t.Fatalf("expected domain error, got %v", err)
	}
	return domainErr.Metadata["field"]
}

func TestNetworkZoneNormalize(t *testing.T) {
	spec, err := NetworkZone{IPRange: "10.10.0.5/24", Gateway: "10.10.0.1", DNS: []string{"8.8.8.8", " ", "1.1.1.1"}}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	zone := spec.(NetworkZone)
	if zone.IPRange != "10.10.0.0/24" || zone.Type != "hotspot" || len(zone.DNS) != 2 {
		t.Fatalf("unexpected zone %+v", zone)
	}

	tests := []struct {
		zone  NetworkZone
		field string
	}{
		{NetworkZone{IPRange: "10.10.0.0"}, "ip_range"},
		{NetworkZone{IPRange: "10.10.0.0/24", Gateway: "10.20.0.1"}, "gateway"},
		{NetworkZone{IPRange: "10.10.0.0/24", DNS: []string{"dns.google"}}, "dns"},
		{NetworkZone{IPRange: "10.10.0.0/24", Type: "corporate"}, "type"},
	}
	for _, tt := range tests {
		_, err := tt.zone.Normalize()
		if got := fieldOf(t, err); got != tt.field {
			t.Errorf("%+v: field = %q, want %q", tt.zone, got, tt.field)
		}
	}
}

func TestRouterNormalize(t *testing.T) {
	spec, err := Router{IP: "192.168.88.1", NASSecret: "s3cret!"}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	router := spec.(Router)
	if router.Port != 1812 || router.Type != "mikrotik" || router.Status != RouterUnknown {
		t.Fatalf("unexpected defaults %+v", router)
	}
	if _, err := (Router{IP: "192.168.88.1", NASSecret: "abc"}).Normalize(); fieldOf(t, err) != "nas_secret" {
		t.Fatalf("expected nas_secret error, got %v", err)
	}
	if _, err := (Router{IP: "router.local", NASSecret: "abcdef"}).Normalize(); fieldOf(t, err) != "ip" {
		t.Fatalf("expected ip error, got %v", err)
	}
}

func TestFirewallRuleNormalize(t *testing.T) {
	tests := []struct {
		name  string
		rule  FirewallRule
		field string
	}{
		{"valid tcp range", FirewallRule{Protocol: "tcp", Port: "8000-8080", Action: "allow"}, ""},
		{"valid single port", FirewallRule{Protocol: "UDP", Port: "53", Source: "10.0.0.0/8", Action: "drop"}, ""},
		{"icmp without port", FirewallRule{Protocol: "icmp", Action: "drop"}, ""},
		{"icmp with port", FirewallRule{Protocol: "icmp", Port: "80", Action: "drop"}, "port"},
		{"reversed range", FirewallRule{Protocol: "tcp", Port: "90-80", Action: "allow"}, "port"},
		{"port out of range", FirewallRule{Protocol: "tcp", Port: "70000", Action: "allow"}, "port"},
		{"zero port", FirewallRule{Protocol: "tcp", Port: "0", Action: "allow"}, "port"},
		{"bad source", FirewallRule{Protocol: "tcp", Source: "lan", Action: "allow"}, "source"},
		{"bad action", FirewallRule{Protocol: "tcp", Action: "reject"}, "action"},
		{"bad priority", FirewallRule{Protocol: "tcp", Action: "allow", Priority: 1001}, "priority"},
		{"bad protocol", FirewallRule{Protocol: "gre", Action: "allow"}, "protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rule.Normalize()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if got := fieldOf(t, err); got != tt.field {
				t.Fatalf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

func TestFirewallRuleDefaultsAndAddresses(t *testing.T) {
	spec, err := FirewallRule{Source: "192.168.1.7", Destination: "any", Action: "ALLOW"}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	rule := spec.(FirewallRule)
	if rule.Protocol != "any" || rule.Priority != 100 || rule.Source != "192.168.1.7/32" || rule.Destination != "" {
		t.Fatalf("unexpected rule %+v", rule)
	}
}

func TestIPPool(t *testing.T) {
	spec, err := IPPool{Start: "10.0.0.10", End: "10.0.1.9"}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	pool := spec.(IPPool)
	if pool.TotalIPs() != 256 {
		t.Fatalf("TotalIPs = %d", pool.TotalIPs())
	}
	if !pool.Contains("10.0.0.10") || !pool.Contains("10.0.1.9") || pool.Contains("10.0.1.10") || pool.Contains("bogus") {
		t.Fatal("unexpected containment")
	}
	if pool.Ranges() != "10.0.0.10-10.0.1.9" {
		t.Fatalf("Ranges = %q", pool.Ranges())
	}
	if _, err := (IPPool{Start: "10.0.0.10", End: "10.0.0.1"}).Normalize(); fieldOf(t, err) != "end" {
		t.Fatal("expected reversed range error")
	}
	if _, err := (IPPool{Start: "10.0.0.1", End: "fe80::1"}).Normalize(); fieldOf(t, err) != "end" {
		t.Fatal("expected family mismatch error")
	}
}

func TestBandwidthProfile(t *testing.T) {
	spec, err := BandwidthProfile{Download: "5m", Upload: "512K", Burst: "10M/2m"}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	profile := spec.(BandwidthProfile)
	if profile.RateLimit() != "5M/512k" || profile.Burst != "10M/2M" || profile.SharedUsers != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	for _, bad := range []BandwidthProfile{
		{Download: "fast", Upload: "1M"},
		{Download: "0", Upload: "1M"},
		{Download: "1M", Upload: "1M", Burst: "10M"},
	} {
		if _, err := bad.Normalize(); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}

func TestDeviceLimit(t *testing.T) {
	if _, err := (DeviceLimit{PlanID: "p", Devices: 3}).Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, err := (DeviceLimit{PlanID: "p", Devices: 0}).Normalize(); fieldOf(t, err) != "devices" {
		t.Fatal("expected devices error")
	}
	if _, err := (DeviceLimit{Devices: 2}).Normalize(); fieldOf(t, err) != "plan_id" {
		t.Fatal("expected plan_id error")
	}
}
