package snmp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"
)

func TestPollDecodesUptimeAndName(t *testing.T) {
	c := NewClient(Config{})
	var gotTarget string
	var gotOIDs []string
	c.get = func(_ context.Context, target string, oids []string) ([]gosnmp.SnmpPDU, error) {
		gotTarget, gotOIDs = target, oids
		return []gosnmp.SnmpPDU{
			{Name: "." + OIDSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(360000)},
			{Name: "." + OIDSysName, Type: gosnmp.OctetString, Value: []byte("core-router")},
		}, nil
	}

	result, err := c.Poll(context.Background(), " 10.0.0.1 ")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if gotTarget != "10.0.0.1" || len(gotOIDs) != 2 {
		t.Fatalf("unexpected request %q %v", gotTarget, gotOIDs)
	}
	if result.Uptime != time.Hour {
		t.Fatalf("expected 1h uptime, got %v", result.Uptime)
	}
	if result.SysName != "core-router" {
		t.Fatalf("expected sysName, got %q", result.SysName)
	}
}

func TestPollRequiresUptime(t *testing.T) {
	c := NewClient(Config{})
	c.get = func(context.Context, string, []string) ([]gosnmp.SnmpPDU, error) {
		return []gosnmp.SnmpPDU{{Name: OIDSysUpTime, Type: gosnmp.NoSuchObject}}, nil
	}
	if _, err := c.Poll(context.Background(), "10.0.0.1"); err == nil {
		t.Fatal("expected missing uptime error")
	}
}

func TestPollWrapsTransportErrors(t *testing.T) {
	c := NewClient(Config{})
	boom := errors.New("timeout")
	c.get = func(context.Context, string, []string) ([]gosnmp.SnmpPDU, error) {
		return nil, boom
	}
	if _, err := c.Poll(context.Background(), "10.0.0.1"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if _, err := c.Poll(context.Background(), ""); err == nil {
		t.Fatal("expected empty target error")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{Retries: -1})
	if c.cfg.Community != "public" || c.cfg.Port != 161 || c.cfg.Timeout <= 0 || c.cfg.Retries != 0 {
		t.Fatalf("unexpected defaults %+v", c.cfg)
	}
}
