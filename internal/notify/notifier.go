package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/strandapp/strand-service/internal/types"
)

// Outcome is the result of one delivery attempt to one subscriber.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	// OutcomeExpired means the endpoint is permanently gone; the target row
	// is pruned.
	OutcomeExpired
	OutcomeRateLimited
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeExpired:
		return "expired"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "transient_error"
	}
}

// Sender is the push-delivery capability: payload bytes in, outcome out.
type Sender interface {
	Send(ctx context.Context, target types.PushTarget, payload []byte) Outcome
}

// TargetStore is the slice of storage the notifier consumes.
type TargetStore interface {
	GetPushTargetsForGroup(ctx context.Context, groupID string, excludeUserIDs []string) ([]types.PushTarget, error)
	DeletePushTarget(ctx context.Context, userID, endpoint string) error
}

// Notifier fans a notification out to every subscribed member of a group.
// It never fails its caller: every error is absorbed and logged, because a
// notification failure must not fail the post creation that triggered it.
type Notifier struct {
	store  TargetStore
	sender Sender
}

func NewNotifier(store TargetStore, sender Sender) *Notifier {
	return &Notifier{store: store, sender: sender}
}

// NotifyGroup delivers to all push targets of the group's members, excluding
// the given user ids, in one batched fetch. Deliveries run independently and
// concurrently; one subscriber's failure never blocks the others. Pruning
// expired targets is the only mutation performed here.
func (n *Notifier) NotifyGroup(ctx context.Context, groupID string, excludeUserIDs []string, note types.Notification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("notifier recovered from panic",
				slog.String("group_id", groupID),
				slog.Any("panic", r))
		}
	}()

	payload, err := json.Marshal(note)
	if err != nil {
		slog.Error("failed to encode notification payload", slog.String("error", err.Error()))
		return
	}

	targets, err := n.store.GetPushTargetsForGroup(ctx, groupID, excludeUserIDs)
	if err != nil {
		slog.Error("failed to fetch push targets",
			slog.String("group_id", groupID),
			slog.String("error", err.Error()))
		return
	}
	if len(targets) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[Outcome]int{}
	)

	for _, target := range targets {
		wg.Add(1)
		go func(target types.PushTarget) {
			defer wg.Done()
			// recover per delivery: one subscriber's panic must not take
			// down the process or the sibling deliveries.
			defer func() {
				if r := recover(); r != nil {
					slog.Error("push delivery panicked",
						slog.String("user_id", target.UserID),
						slog.Any("panic", r))
				}
			}()

			outcome := n.sender.Send(ctx, target, payload)

			switch outcome {
			case OutcomeExpired:
				if err := n.store.DeletePushTarget(ctx, target.UserID, target.Endpoint); err != nil {
					slog.Warn("failed to prune expired push target",
						slog.String("user_id", target.UserID),
						slog.String("error", err.Error()))
				}
			case OutcomeRateLimited:
				slog.Warn("push delivery rate limited", slog.String("user_id", target.UserID))
			case OutcomeTransient:
				slog.Warn("push delivery failed transiently", slog.String("user_id", target.UserID))
			}

			mu.Lock()
			counts[outcome]++
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	slog.Info("push fan-out complete",
		slog.String("group_id", groupID),
		slog.Int("targets", len(targets)),
		slog.Int("delivered", counts[OutcomeDelivered]),
		slog.Int("expired", counts[OutcomeExpired]),
		slog.Int("rate_limited", counts[OutcomeRateLimited]),
		slog.Int("transient", counts[OutcomeTransient]))
}
