package app

import (
	"context"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
)

// Sync pushes one record to RouterOS. Only firewall rules, IP pools,
// bandwidth profiles and MAC filters have a router counterpart.
func (s *Service) Sync(ctx context.Context, kind network.Kind, recordID string) (network.Record, error) {
	ctx, span := tracer.Start(ctx, "network.Sync")
	defer span.End()

	record, err := s.Get(ctx, kind, recordID)
	if err != nil {
		return network.Record{}, err
	}
	switch spec := record.Spec.(type) {
	case network.FirewallRule:
		err = s.router.AddFirewallFilter(ctx, firewallFilter(record.Name, spec))
	case network.IPPool:
		err = s.router.AddIPPool(ctx, mikrotik.IPPool{Name: record.Name, Ranges: spec.Ranges()})
	case network.BandwidthProfile:
		err = s.router.CreateUserProfile(ctx, mikrotik.Profile{
			Name:        record.Name,
			RateLimit:   spec.RateLimit(),
			SharedUsers: spec.SharedUsers,
		})
	case network.MACFilter:
		bindingType := "bypassed"
		if spec.Blocks() {
			bindingType = "blocked"
		}
		err = s.router.AddIPBinding(ctx, mikrotik.IPBinding{MACAddress: spec.MAC, Type: bindingType, Comment: record.Name})
	default:
		return network.Record{}, apperrors.WithMetadata(apperrors.CodeUnsupportedAction,
			string(kind)+" records cannot be synced to the router", map[string]string{"kind": string(kind)})
	}
	if err != nil {
		return network.Record{}, apperrors.Wrap(apperrors.CodeUnavailable, "router sync failed: "+err.Error(), err)
	}
	s.audit.Record(ctx, "sync", string(kind), []string{record.ID}, record.Name)
	return record, nil
}

func firewallFilter(name string, rule network.FirewallRule) mikrotik.FirewallFilter {
	filter := mikrotik.FirewallFilter{
		Chain:   "forward",
		Action:  "accept",
		SrcAddr: rule.Source,
		DstAddr: rule.Destination,
		Comment: name,
	}
	if rule.Action == "drop" {
		filter.Action = "drop"
	}
	if rule.Protocol != "any" {
		filter.Protocol = rule.Protocol
		filter.DstPort = rule.Port
	}
	return filter
}
