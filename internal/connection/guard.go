package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

// ErrNoEvent is returned when a guarded handler is invoked without an event.
var ErrNoEvent = errors.New("connection: nil event")

// Handler is a command that needs a resolved target.
type Handler func(ctx context.Context, ev domain.Event, target domain.Target) error

// EventHandler is what the dispatcher calls.
type EventHandler func(ctx context.Context, ev domain.Event) error

// TargetResolver is implemented by *Resolver.
type TargetResolver interface {
	Resolve(ctx context.Context, req Request) (domain.Outcome, error)
}

// Guard runs commands only once their target chat has been resolved and
// authorised, answering refusals itself.
type Guard struct {
	resolver TargetResolver
	replier  Replier
	loc      Localizer
	log      *logging.Logger
}

// NewGuard answers refusals through replier, localized by loc.
func NewGuard(resolver TargetResolver, replier Replier, loc Localizer, log *logging.Logger) *Guard {
	return &Guard{resolver: resolver, replier: replier, loc: loc, log: log.Sub("guard")}
}

// Wrap returns h guarded by a resolution with the given requirements.
func (g *Guard) Wrap(req domain.Requirements, h Handler) EventHandler {
	return func(ctx context.Context, ev domain.Event) error {
		if ev == nil {
			return ErrNoEvent
		}
		msg, userID := domain.Unwrap(ev)

		out, err := g.resolver.Resolve(ctx, Request{Message: msg, ActingUserID: userID, Requirements: req})
		if err != nil {
			return err
		}
		if !out.OK() {
			text := g.loc.Refusal(msg.LanguageCode, out.Reason)
			if err := g.replier.Reply(ctx, msg, text); err != nil {
				return fmt.Errorf("replying %s to user %d: %w", out.Reason, userID, err)
			}
			return nil
		}
		return h(ctx, ev, out.Target)
	}
}
