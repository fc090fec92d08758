package bot

import (
	"context"
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/fingames/core/logger"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/moderation"
	"github.com/m3rciful/fingames/internal/registration"
)

// Sender delivers a message to an arbitrary chat. *tele.Bot satisfies it.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Queue schedules outbound calls per recipient. *sender.Dispatcher satisfies it.
type Queue interface {
	EnqueueTo(ctx context.Context, action string, recipient int64, run func() error) error
}

// Notifier tells every moderator about new registrations. Each moderator is
// reached independently: a failed delivery is logged and does not affect the
// others. It implements workflow.Listener.
type Notifier struct {
	moderators []int64
	catalog    *catalog.Catalog

	mu     sync.RWMutex
	sender Sender
	queue  Queue
}

// NewNotifier builds a notifier for the given moderators. It stays silent
// until Attach provides a transport.
func NewNotifier(moderators moderation.Moderators, cat *catalog.Catalog) *Notifier {
	return &Notifier{moderators: moderators.IDs(), catalog: cat}
}

// Attach sets the transport once the bot is running. A nil queue sends inline.
func (n *Notifier) Attach(s Sender, q Queue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sender = s
	n.queue = q
}

func (n *Notifier) transport() (Sender, Queue) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sender, n.queue
}

// Registered sends the new-registration notice.
func (n *Notifier) Registered(ctx context.Context, reg registration.Registration) {
	if ctx == nil {
		ctx = logger.Background()
	}
	s, q := n.transport()
	if s == nil {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "notify.skip",
			slog.String("reason", "not_attached"),
			slog.String("voucher", reg.VoucherCode),
		)
		return
	}

	label := reg.Game
	if n.catalog != nil {
		label = gameLabel(n.catalog, reg.Game)
	}
	text := moderatorNoticeText(reg, label)

	for _, id := range n.moderators {
		to := &tele.User{ID: id}
		run := func() error {
			_, err := s.Send(to, text)
			return err
		}
		if q != nil {
			if err := q.EnqueueTo(ctx, "notify.moderator", id, run); err != nil {
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "notify.enqueue_failed",
					slog.Int64("recipient", id),
					slog.String("voucher", reg.VoucherCode),
					slog.String("err", err.Error()),
				)
			}
			continue
		}
		if err := run(); err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "notify.failed",
				slog.Int64("recipient", id),
				slog.String("voucher", reg.VoucherCode),
				slog.String("err", err.Error()),
			)
		}
	}
}
