package mikrotik

import (
	"context"
	"errors"
	"log"
)

// ErrNotFound is returned when the named router entry does not exist.
// Callers removing or updating users usually ignore it.
var ErrNotFound = errors.New("router entry not found")

// HotspotUser is an /ip/hotspot/user entry.
type HotspotUser struct {
	Name     string
	Password string
	Profile  string
	// MACAddress binds the login to one device when set.
	MACAddress string
	// LimitUptime is a RouterOS duration such as "1d" or "2h".
	LimitUptime     string
	LimitBytesTotal int64
}

// HotspotUserUpdate changes fields of an existing hotspot user. Zero values
// leave the field unchanged.
type HotspotUserUpdate struct {
	Profile         string
	LimitUptime     string
	LimitBytesTotal int64
	Disabled        *bool
}

// ActiveUser is an /ip/hotspot/active entry.
type ActiveUser struct {
	ID         string `json:"id"`
	User       string `json:"user"`
	Address    string `json:"address"`
	MACAddress string `json:"mac_address"`
	Uptime     string `json:"uptime"`
	BytesIn    string `json:"bytes_in"`
	BytesOut   string `json:"bytes_out"`
}

// Profile is an /ip/hotspot/user/profile entry.
type Profile struct {
	Name           string
	RateLimit      string
	SessionTimeout string
	SharedUsers    int
}

// PPPSecret is a /ppp/secret entry.
type PPPSecret struct {
	Name     string
	Password string
	Profile  string
	// Service defaults to pppoe.
	Service string
}

// FirewallFilter is an /ip/firewall/filter entry.
type FirewallFilter struct {
	Chain    string
	Action   string
	Protocol string
	DstPort  string
	SrcAddr  string
	DstAddr  string
	Comment  string
}

// IPPool is an /ip/pool entry.
type IPPool struct {
	Name   string
	Ranges string
}

// IPBinding is an /ip/hotspot/ip-binding entry.
type IPBinding struct {
	MACAddress string
	// Type is blocked, bypassed or regular.
	Type    string
	Comment string
}

// Gateway is the router surface the services depend on.
type Gateway interface {
	AddHotspotUser(ctx context.Context, user HotspotUser) error
	UpdateHotspotUser(ctx context.Context, name string, update HotspotUserUpdate) error
	RemoveHotspotUser(ctx context.Context, name string) error
	DisconnectUser(ctx context.Context, name string) error
	ActiveUsers(ctx context.Context) ([]ActiveUser, error)
	CreateUserProfile(ctx context.Context, profile Profile) error
	AddPPPSecret(ctx context.Context, secret PPPSecret) error
	RemovePPPSecret(ctx context.Context, name string) error
	AddFirewallFilter(ctx context.Context, rule FirewallFilter) error
	AddIPPool(ctx context.Context, pool IPPool) error
	AddIPBinding(ctx context.Context, binding IPBinding) error
}

// Disabled is the gateway used when no router is configured.
type Disabled struct {
	Logf func(format string, args ...any)
}

var _ Gateway = Disabled{}

func (d Disabled) logf(op, name string) {
	logf := d.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("mikrotik disabled: skip %s %s", op, name)
}

func (d Disabled) AddHotspotUser(_ context.Context, user HotspotUser) error {
	d.logf("add hotspot user", user.Name)
	return nil
}

func (d Disabled) UpdateHotspotUser(_ context.Context, name string, _ HotspotUserUpdate) error {
	d.logf("update hotspot user", name)
	return nil
}

func (d Disabled) RemoveHotspotUser(_ context.Context, name string) error {
	d.logf("remove hotspot user", name)
	return nil
}

func (d Disabled) DisconnectUser(_ context.Context, name string) error {
	d.logf("disconnect", name)
	return nil
}

func (d Disabled) ActiveUsers(context.Context) ([]ActiveUser, error) {
	return []ActiveUser{}, nil
}

func (d Disabled) CreateUserProfile(_ context.Context, profile Profile) error {
	d.logf("create profile", profile.Name)
	return nil
}

func (d Disabled) AddPPPSecret(_ context.Context, secret PPPSecret) error {
	d.logf("add ppp secret", secret.Name)
	return nil
}

func (d Disabled) RemovePPPSecret(_ context.Context, name string) error {
	d.logf("remove ppp secret", name)
	return nil
}

func (d Disabled) AddFirewallFilter(_ context.Context, rule FirewallFilter) error {
	d.logf("add firewall filter", rule.Comment)
	return nil
}

func (d Disabled) AddIPPool(_ context.Context, pool IPPool) error {
	d.logf("add ip pool", pool.Name)
	return nil
}

func (d Disabled) AddIPBinding(_ context.Context, binding IPBinding) error {
	d.logf("add ip binding", binding.MACAddress)
	return nil
}
