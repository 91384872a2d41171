// Package jobs runs background work on a cron schedule. The only job today
// is the settlement sweep over completed, unsettled sessions.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/beniljosek/peerly/internal/services"
)

type Scheduler struct {
	cron       *cron.Cron
	settlement *services.SettlementService
	spec       string
}

func NewScheduler(spec string, settlement *services.SettlementService) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		settlement: settlement,
		spec:       spec,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		settled, err := s.settlement.SettleDue(ctx)
		if err != nil {
			log.WithError(err).Error("settlement sweep failed")
			return
		}
		if settled > 0 {
			log.WithField("settled", settled).Info("settlement sweep finished")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("schedule", s.spec).Info("settlement sweeper started")
	return nil
}

func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	log.Info("settlement sweeper stopped")
}
