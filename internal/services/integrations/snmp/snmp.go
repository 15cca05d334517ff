// Package snmp polls routers for reachability over SNMP v2c.
package snmp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/zmooth/zmooth/internal/platform/timeouts"
)

const (
	// OIDSysUpTime is SNMPv2-MIB::sysUpTime.0 in hundredths of a second.
	OIDSysUpTime = "1.3.6.1.2.1.1.3.0"
	// OIDSysName is SNMPv2-MIB::sysName.0.
	OIDSysName = "1.3.6.1.2.1.1.5.0"

	defaultPort      = 161
	defaultCommunity = "public"
)

// Result is one successful poll.
type Result struct {
	SysName string
	Uptime  time.Duration
}

// Poller queries one router.
type Poller interface {
	Poll(ctx context.Context, target string) (Result, error)
}

// Config controls the SNMP client.
type Config struct {
	Community string
	Port      uint16
	Timeout   time.Duration
	Retries   int
}

type getFunc func(ctx context.Context, target string, oids []string) ([]gosnmp.SnmpPDU, error)

// Client polls with gosnmp.
type Client struct {
	cfg Config
	get getFunc
}

// NewClient applies defaults to cfg.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Community) == "" {
		cfg.Community = defaultCommunity
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.SNMP
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	c := &Client{cfg: cfg}
	c.get = c.gosnmpGet
	return c
}

// Poll reads sysUpTime and sysName from target.
func (c *Client) Poll(ctx context.Context, target string) (Result, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Result{}, fmt.Errorf("snmp target is required")
	}
	pdus, err := c.get(ctx, target, []string{OIDSysUpTime, OIDSysName})
	if err != nil {
		return Result{}, fmt.Errorf("snmp get %s: %w", target, err)
	}
	return decode(pdus)
}

func (c *Client) gosnmpGet(ctx context.Context, target string, oids []string) ([]gosnmp.SnmpPDU, error) {
	g := &gosnmp.GoSNMP{
		Target:    target,
		Port:      c.cfg.Port,
		Community: c.cfg.Community,
		Version:   gosnmp.Version2c,
		Timeout:   c.cfg.Timeout,
		Retries:   c.cfg.Retries,
		Context:   ctx,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer g.Conn.Close()
	packet, err := g.Get(oids)
	if err != nil {
		return nil, err
	}
	if packet.Error != gosnmp.NoError {
		return nil, fmt.Errorf("agent error %v", packet.Error)
	}
	return packet.Variables, nil
}

func decode(pdus []gosnmp.SnmpPDU) (Result, error) {
	var result Result
	var sawUptime bool
	for _, pdu := range pdus {
		switch pdu.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.Null:
			continue
		}
		switch strings.TrimPrefix(pdu.Name, ".") {
		case OIDSysUpTime:
			ticks := gosnmp.ToBigInt(pdu.Value).Int64()
			result.Uptime = time.Duration(ticks) * 10 * time.Millisecond
			sawUptime = true
		case OIDSysName:
			switch v := pdu.Value.(type) {
			case []byte:
				result.SysName = string(v)
			case string:
				result.SysName = v
			default:
				result.SysName = fmt.Sprintf("%v", v)
			}
		}
	}
	if !sawUptime {
		return Result{}, fmt.Errorf("agent returned no sysUpTime")
	}
	return result, nil
}
