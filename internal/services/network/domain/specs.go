package domain

import (
	"fmt"
	"math/big"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/auth/user"
)

// NetworkZone is an addressed segment served by the operator.
type NetworkZone struct {
	Location    string   `json:"location"`
	IPRange     string   `json:"ip_range"`
	Gateway     string   `json:"gateway"`
	DNS         []string `json:"dns"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
}

func (NetworkZone) Kind() Kind { return KindNetworkZone }

func (z NetworkZone) Normalize() (Spec, error) {
	z.Location = strings.TrimSpace(z.Location)
	z.Description = strings.TrimSpace(z.Description)
	prefix, err := netip.ParsePrefix(strings.TrimSpace(z.IPRange))
	if err != nil {
		return nil, apperrors.Invalid("ip_range", "IP range must be CIDR notation such as 10.0.0.0/24")
	}
	prefix = prefix.Masked()
	z.IPRange = prefix.String()
	if strings.TrimSpace(z.Gateway) != "" {
		gateway, err := netip.ParseAddr(strings.TrimSpace(z.Gateway))
		if err != nil {
			return nil, apperrors.Invalid("gateway", "gateway must be an IP address")
		}
		if !prefix.Contains(gateway) {
			return nil, apperrors.Invalid("gateway", "gateway must be inside the IP range")
		}
		z.Gateway = gateway.String()
	}
	dns := make([]string, 0, len(z.DNS))
	for _, server := range z.DNS {
		server = strings.TrimSpace(server)
		if server == "" {
			continue
		}
		addr, err := netip.ParseAddr(server)
		if err != nil {
			return nil, apperrors.Invalid("dns", fmt.Sprintf("DNS server %q is not an IP address", server))
		}
		dns = append(dns, addr.String())
	}
	z.DNS = dns
	switch z.Type = strings.ToLower(strings.TrimSpace(z.Type)); z.Type {
	case "":
		z.Type = "hotspot"
	case "hotspot", "pppoe", "management", "guest":
	default:
		return nil, apperrors.Invalid("type", "zone type must be hotspot, pppoe, management or guest")
	}
	return z, nil
}

func (z NetworkZone) SearchText() []string {
	return []string{z.Location, z.IPRange, z.Type}
}

func (NetworkZone) CSVHeader() []string {
	return []string{"Location", "IP Range", "Gateway", "DNS", "Type", "Description"}
}

func (z NetworkZone) CSVRow() []string {
	return []string{z.Location, z.IPRange, z.Gateway, strings.Join(z.DNS, " "), z.Type, z.Description}
}

// Router status values set by the poller.
const (
	RouterOnline  = "online"
	RouterOffline = "offline"
	RouterUnknown = "unknown"
)

// Router is a NAS device.
type Router struct {
	IP           string `json:"ip"`
	MAC          string `json:"mac"`
	NASSecret    string `json:"nas_secret"`
	Type         string `json:"type"`
	Port         int    `json:"port"`
	RadiusServer string `json:"radius_server"`
	Station      string `json:"station"`
	Status       string `json:"status"`
}

func (Router) Kind() Kind { return KindRouter }

func (r Router) Normalize() (Spec, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(r.IP))
	if err != nil {
		return nil, apperrors.Invalid("ip", "router IP address is invalid")
	}
	r.IP = addr.String()
	mac, err := user.NormalizeMAC(r.MAC)
	if err != nil {
		return nil, err
	}
	r.MAC = mac
	r.NASSecret = strings.TrimSpace(r.NASSecret)
	if len(r.NASSecret) < 6 {
		return nil, apperrors.Invalid("nas_secret", "NAS secret must be at least 6 characters")
	}
	switch r.Type = strings.ToLower(strings.TrimSpace(r.Type)); r.Type {
	case "":
		r.Type = "mikrotik"
	case "mikrotik", "other":
	default:
		return nil, apperrors.Invalid("type", "router type must be mikrotik or other")
	}
	if r.Port == 0 {
		r.Port = 1812
	}
	if r.Port < 1 || r.Port > 65535 {
		return nil, apperrors.Invalid("port", "port must be between 1 and 65535")
	}
	r.RadiusServer = strings.TrimSpace(r.RadiusServer)
	r.Station = strings.TrimSpace(r.Station)
	switch r.Status = strings.ToLower(strings.TrimSpace(r.Status)); r.Status {
	case "":
		r.Status = RouterUnknown
	case RouterOnline, RouterOffline, RouterUnknown:
	default:
		return nil, apperrors.Invalid("status", "status must be online, offline or unknown")
	}
	return r, nil
}

func (r Router) SearchText() []string {
	return []string{r.IP, r.Station, r.Status}
}

func (Router) CSVHeader() []string {
	return []string{"IP", "MAC", "Type", "Port", "RADIUS Server", "Station", "Status"}
}

func (r Router) CSVRow() []string {
	return []string{r.IP, r.MAC, r.Type, strconv.Itoa(r.Port), r.RadiusServer, r.Station, r.Status}
}

var portPattern = regexp.MustCompile(`^(\d{1,5})(?:-(\d{1,5}))?$`)

// FirewallRule filters traffic on the router.
type FirewallRule struct {
	Protocol    string `json:"protocol"`
	Port        string `json:"port"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
}

func (FirewallRule) Kind() Kind { return KindFirewallRule }

func (f FirewallRule) Normalize() (Spec, error) {
	switch f.Protocol = strings.ToLower(strings.TrimSpace(f.Protocol)); f.Protocol {
	case "":
		f.Protocol = "any"
	case "tcp", "udp", "icmp", "any":
	default:
		return nil, apperrors.Invalid("protocol", "protocol must be tcp, udp, icmp or any")
	}
	f.Port = strings.TrimSpace(f.Port)
	if f.Protocol == "icmp" || f.Protocol == "any" {
		if f.Port != "" {
			return nil, apperrors.Invalid("port", "port is only allowed for tcp and udp rules")
		}
	} else if f.Port != "" {
		if err := validatePortRange(f.Port); err != nil {
			return nil, err
		}
	}
	var err error
	if f.Source, err = normalizeCIDR("source", f.Source); err != nil {
		return nil, err
	}
	if f.Destination, err = normalizeCIDR("destination", f.Destination); err != nil {
		return nil, err
	}
	switch f.Action = strings.ToLower(strings.TrimSpace(f.Action)); f.Action {
	case "allow", "drop":
	default:
		return nil, apperrors.Invalid("action", "action must be allow or drop")
	}
	if f.Priority == 0 {
		f.Priority = 100
	}
	if f.Priority < 1 || f.Priority > 1000 {
		return nil, apperrors.Invalid("priority", "priority must be between 1 and 1000")
	}
	return f, nil
}

func validatePortRange(value string) error {
	groups := portPattern.FindStringSubmatch(value)
	if groups == nil {
		return apperrors.Invalid("port", "port must be N or N-M")
	}
	low, _ := strconv.Atoi(groups[1])
	high := low
	if groups[2] != "" {
		high, _ = strconv.Atoi(groups[2])
	}
	if low < 1 || high > 65535 || low > high {
		return apperrors.Invalid("port", "ports must be within 1-65535 with start before end")
	}
	return nil
}

// normalizeCIDR accepts a prefix or a bare address; empty means any.
func normalizeCIDR(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "any") {
		return "", nil
	}
	if prefix, err := netip.ParsePrefix(value); err == nil {
		return prefix.Masked().String(), nil
	}
	if addr, err := netip.ParseAddr(value); err == nil {
		return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
	}
	return "", apperrors.Invalid(field, field+" must be an IP address or CIDR")
}

func (f FirewallRule) SearchText() []string {
	return []string{f.Protocol, f.Port, f.Source, f.Destination, f.Action}
}

func (FirewallRule) CSVHeader() []string {
	return []string{"Protocol", "Port", "Source", "Destination", "Action", "Priority"}
}

func (f FirewallRule) CSVRow() []string {
	return []string{f.Protocol, f.Port, f.Source, f.Destination, f.Action, strconv.Itoa(f.Priority)}
}

// MACFilter allows or blocks a device.
type MACFilter struct {
	MAC        string `json:"mac"`
	DeviceName string `json:"device_name"`
	Action     string `json:"action"`
}

func (MACFilter) Kind() Kind { return KindMACFilter }

func (m MACFilter) Normalize() (Spec, error) {
	mac, err := user.NormalizeMAC(m.MAC)
	if err != nil {
		return nil, err
	}
	if mac == "" {
		return nil, apperrors.Invalid("mac", "MAC address is required")
	}
	m.MAC = mac
	m.DeviceName = strings.TrimSpace(m.DeviceName)
	switch m.Action = strings.ToLower(strings.TrimSpace(m.Action)); m.Action {
	case "allow", "block":
	default:
		return nil, apperrors.Invalid("action", "action must be allow or block")
	}
	return m, nil
}

// Blocks reports whether the filter rejects its device.
func (m MACFilter) Blocks() bool {
	return m.Action == "block"
}

func (m MACFilter) SearchText() []string {
	return []string{m.MAC, m.DeviceName, m.Action}
}

func (MACFilter) CSVHeader() []string {
	return []string{"MAC", "Device", "Action"}
}

func (m MACFilter) CSVRow() []string {
	return []string{m.MAC, m.DeviceName, m.Action}
}

// IPPool is an address range handed to sessions.
type IPPool struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Router string `json:"router"`
	// UsedIPs is filled at read time from active sessions.
	UsedIPs int64 `json:"used_ips,omitempty"`
}

func (IPPool) Kind() Kind { return KindIPPool }

func (p IPPool) Normalize() (Spec, error) {
	start, err := netip.ParseAddr(strings.TrimSpace(p.Start))
	if err != nil || !start.Is4() {
		return nil, apperrors.Invalid("start", "start must be an IPv4 address")
	}
	end, err := netip.ParseAddr(strings.TrimSpace(p.End))
	if err != nil || !end.Is4() {
		return nil, apperrors.Invalid("end", "end must be an IPv4 address")
	}
	if end.Less(start) {
		return nil, apperrors.Invalid("end", "end must not be before start")
	}
	p.Start = start.String()
	p.End = end.String()
	p.Router = strings.TrimSpace(p.Router)
	p.UsedIPs = 0
	return p, nil
}

// TotalIPs counts the addresses in the range, inclusive.
func (p IPPool) TotalIPs() int64 {
	start, err1 := netip.ParseAddr(p.Start)
	end, err2 := netip.ParseAddr(p.End)
	if err1 != nil || err2 != nil || end.Less(start) {
		return 0
	}
	diff := new(big.Int).Sub(new(big.Int).SetBytes(end.AsSlice()), new(big.Int).SetBytes(start.AsSlice()))
	return diff.Int64() + 1
}

// Contains reports whether ip falls in the pool.
func (p IPPool) Contains(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	start, err1 := netip.ParseAddr(p.Start)
	end, err2 := netip.ParseAddr(p.End)
	if err1 != nil || err2 != nil {
		return false
	}
	return !addr.Less(start) && !end.Less(addr)
}

// Ranges renders the RouterOS ranges value.
func (p IPPool) Ranges() string {
	return p.Start + "-" + p.End
}

func (p IPPool) SearchText() []string {
	return []string{p.Start, p.End, p.Router}
}

func (IPPool) CSVHeader() []string {
	return []string{"Start", "End", "Router", "Total IPs", "Used IPs"}
}

func (p IPPool) CSVRow() []string {
	return []string{p.Start, p.End, p.Router, strconv.FormatInt(p.TotalIPs(), 10), strconv.FormatInt(p.UsedIPs, 10)}
}

var ratePattern = regexp.MustCompile(`^(\d+)([kKmMgG]?)$`)

// BandwidthProfile is a named rate limit.
type BandwidthProfile struct {
	Download    string `json:"download"`
	Upload      string `json:"upload"`
	Burst       string `json:"burst"`
	SharedUsers int    `json:"shared_users"`
}

func (BandwidthProfile) Kind() Kind { return KindBandwidthProfile }

func (b BandwidthProfile) Normalize() (Spec, error) {
	var err error
	if b.Download, err = normalizeRate("download", b.Download); err != nil {
		return nil, err
	}
	if b.Upload, err = normalizeRate("upload", b.Upload); err != nil {
		return nil, err
	}
	b.Burst = strings.TrimSpace(b.Burst)
	if b.Burst != "" {
		down, up, ok := strings.Cut(b.Burst, "/")
		if !ok {
			return nil, apperrors.Invalid("burst", "burst must be download/upload such as 10M/10M")
		}
		if down, err = normalizeRate("burst", down); err != nil {
			return nil, err
		}
		if up, err = normalizeRate("burst", up); err != nil {
			return nil, err
		}
		b.Burst = down + "/" + up
	}
	if b.SharedUsers == 0 {
		b.SharedUsers = 1
	}
	if b.SharedUsers < 1 {
		return nil, apperrors.Invalid("shared_users", "shared users must be at least 1")
	}
	return b, nil
}

func normalizeRate(field, value string) (string, error) {
	groups := ratePattern.FindStringSubmatch(strings.TrimSpace(value))
	if groups == nil || groups[1] == "0" {
		return "", apperrors.Invalid(field, field+" rate must look like 512k, 5M or 1G")
	}
	unit := groups[2]
	switch unit {
	case "K":
		unit = "k"
	case "m":
		unit = "M"
	case "g":
		unit = "G"
	}
	return groups[1] + unit, nil
}

// RateLimit renders "download/upload".
func (b BandwidthProfile) RateLimit() string {
	return b.Download + "/" + b.Upload
}

func (b BandwidthProfile) SearchText() []string {
	return []string{b.Download, b.Upload, b.RateLimit()}
}

func (BandwidthProfile) CSVHeader() []string {
	return []string{"Download", "Upload", "Burst", "Shared Users"}
}

func (b BandwidthProfile) CSVRow() []string {
	return []string{b.Download, b.Upload, b.Burst, strconv.Itoa(b.SharedUsers)}
}

// DeviceLimit overrides a plan's concurrent device count.
type DeviceLimit struct {
	PlanID  string `json:"plan_id"`
	Devices int    `json:"devices"`
}

func (DeviceLimit) Kind() Kind { return KindDeviceLimit }

func (d DeviceLimit) Normalize() (Spec, error) {
	d.PlanID = strings.TrimSpace(d.PlanID)
	if d.PlanID == "" {
		return nil, apperrors.Invalid("plan_id", "plan_id is required")
	}
	if d.Devices < 1 || d.Devices > 50 {
		return nil, apperrors.Invalid("devices", "devices must be between 1 and 50")
	}
	return d, nil
}

func (d DeviceLimit) SearchText() []string {
	return []string{d.PlanID}
}

func (DeviceLimit) CSVHeader() []string {
	return []string{"Plan", "Devices"}
}

func (d DeviceLimit) CSVRow() []string {
	return []string{d.PlanID, strconv.Itoa(d.Devices)}
}
