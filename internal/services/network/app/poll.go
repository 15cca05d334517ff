package app

import (
	"context"
	"log"

	"github.com/zmooth/zmooth/internal/services/integrations/snmp"
	network "github.com/zmooth/zmooth/internal/services/network/domain"
	"github.com/zmooth/zmooth/internal/storage"
)

// PollResult counts router states after one poll.
type PollResult struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// PollRouters queries every active router over SNMP, records the outcome
// and flips the record status between online and offline.
func (s *Service) PollRouters(ctx context.Context, poller snmp.Poller) (PollResult, error) {
	ctx, span := tracer.Start(ctx, "network.PollRouters")
	defer span.End()

	routers, err := s.store.ListAllRecords(ctx, network.KindRouter, true)
	if err != nil {
		return PollResult{}, err
	}
	var result PollResult
	for _, record := range routers {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		router, ok := record.Spec.(network.Router)
		if !ok {
			continue
		}
		status := storage.RouterStatus{
			RouterID: record.ID,
			Name:     record.Name,
			IP:       router.IP,
			Status:   network.RouterOnline,
			PolledAt: s.now(),
		}
		polled, err := poller.Poll(ctx, router.IP)
		if err != nil {
			status.Status = network.RouterOffline
			status.Error = err.Error()
			result.Offline++
		} else {
			status.SysName = polled.SysName
			status.UptimeSeconds = int64(polled.Uptime.Seconds())
			result.Online++
		}
		if err := s.store.PutRouterStatus(ctx, status); err != nil {
			return result, err
		}
		if router.Status != status.Status {
			router.Status = status.Status
			record.Spec = router
			record.UpdatedAt = s.now()
			if err := s.store.PutRecord(ctx, record); err != nil {
				log.Printf("update router %s status: %v", record.Name, err)
			}
		}
	}
	return result, nil
}

// RouterStatuses returns the latest poll of each router.
func (s *Service) RouterStatuses(ctx context.Context) ([]storage.RouterStatus, error) {
	return s.store.ListRouterStatuses(ctx)
}
