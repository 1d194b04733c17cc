package reminder

import (
	"context"

	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// wait is the body of one wait-and-deliver worker. It sleeps in bounded
// chunks until the fire instant, re-validates against the store, then
// delivers and consumes the row. Cancellation is observed at every chunk
// boundary and once more right before the re-fetch.
func (s *Service) wait(ctx context.Context, rem storage.Reminder) {
	log := s.log.With(logx.Int64("reminder", rem.ID))

	for {
		remaining := rem.FireAt.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		chunk := remaining
		if maxChunk := s.tunables().MaxChunk; chunk > maxChunk {
			chunk = maxChunk
		}
		t := s.clock.Timer(chunk)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	// A cancel can land exactly on the wake boundary; it wins.
	select {
	case <-ctx.Done():
		return
	default:
	}

	tun := s.tunables()

	// Deliberately not the worker ctx: a shutdown mid-delivery should not
	// abort the store calls half-way.
	opCtx, cancel := context.WithTimeout(context.Background(), tun.DeliveryTimeout)
	defer cancel()

	cur, err := s.store.GetReminder(opCtx, rem.ID)
	if err != nil {
		log.Error("re-fetch failed; row left for the next reconciliation", logx.Err(err))
		return
	}
	if cur == nil {
		// Cancelled or already delivered by a racing path.
		log.Debug("reminder row gone before wake")
		return
	}

	// Clock-skew guard: never deliver early.
	if early := cur.FireAt.Sub(s.clock.Now()); early > tun.StaleSkew {
		log.Warn("woke ahead of fire instant; refusing early delivery",
			logx.Duration("early_by", early), logx.Time("fire_at", cur.FireAt))
		s.audit(opCtx, cur.OwnerID, cur.ID, "stale", false, "woke early")
		return
	}

	s.deliver(opCtx, *cur, log)
}

func (s *Service) deliver(ctx context.Context, rem storage.Reminder, log logx.Logger) {
	var sendErr error
	if rem.DM {
		sendErr = s.msgr.SendDirect(ctx, rem.OwnerID, rem.Message)
	} else {
		sendErr = s.msgr.SendChannel(ctx, rem.ChannelID, rem.Message)
	}
	if sendErr != nil {
		// At-most-once: the row is still consumed below so a flaky
		// transport cannot cause a redelivery loop.
		log.Warn("delivery failed; reminder consumed anyway", logx.Err(sendErr))
	} else {
		log.Info("reminder delivered", logx.Int64("owner", rem.OwnerID), logx.Bool("dm", rem.DM))
	}

	if _, err := s.store.DeleteReminder(ctx, rem.ID, rem.OwnerID); err != nil {
		log.Error("failed deleting delivered reminder", logx.Err(err))
	}

	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	}
	s.audit(ctx, rem.OwnerID, rem.ID, "delivered", sendErr == nil, errMsg)
}
