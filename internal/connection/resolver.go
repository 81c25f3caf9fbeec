package connection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/hooks"
	"github.com/soyeahso/chatconn/internal/logging"
	"github.com/soyeahso/chatconn/internal/observability"
)

// Request is one resolution.
type Request struct {
	Message domain.Message
	// ActingUserID is the user the command runs for. Zero means the
	// message sender.
	ActingUserID int64
	Requirements domain.Requirements
}

func (r Request) userID() int64 {
	if r.ActingUserID != 0 {
		return r.ActingUserID
	}
	return r.Message.FromID
}

// Resolver maps a command invocation to its target chat.
type Resolver struct {
	store   Store
	cache   Cache
	oracle  Oracle
	log     *logging.Logger
	metrics *observability.Metrics
	tracing *observability.Tracing
	hooks   *hooks.Manager
}

// Option configures a Resolver or Manager.
type Option func(*options)

type options struct {
	metrics *observability.Metrics
	tracing *observability.Tracing
	hooks   *hooks.Manager
}

// WithMetrics records resolution counters on m.
func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithTracing wraps each operation in a span. Without it spans are no-ops.
func WithTracing(t *observability.Tracing) Option { return func(o *options) { o.tracing = t } }

// WithHooks emits lifecycle and refusal events on h.
func WithHooks(h *hooks.Manager) Option { return func(o *options) { o.hooks = h } }

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.tracing == nil {
		o.tracing = observability.NoopTracing()
	}
	return o
}

// NewResolver builds a resolver over the store, the resolution cache and the
// admin oracle.
func NewResolver(store Store, cache Cache, oracle Oracle, log *logging.Logger, opts ...Option) *Resolver {
	o := applyOptions(opts)
	return &Resolver{
		store:   store,
		cache:   cache,
		oracle:  oracle,
		log:     log.Sub("resolver"),
		metrics: o.metrics,
		tracing: o.tracing,
		hooks:   o.hooks,
	}
}

// Resolve returns the target for req, or the reason it is refused.
// Errors are infrastructure failures only.
func (r *Resolver) Resolve(ctx context.Context, req Request) (out domain.Outcome, err error) {
	userID := req.userID()
	msg := req.Message
	start := time.Now()

	ctx, span := r.tracing.Start(ctx, observability.SpanResolve,
		attribute.Int64(observability.AttrUserID, userID),
		attribute.Int64(observability.AttrChatID, msg.ChatID),
		attribute.String(observability.AttrChatKind, string(msg.ChatKind)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Error().Err(err).Int64("user_id", userID).Int64("chat_id", msg.ChatID).Msg("resolution failed")
		} else {
			r.finish(ctx, userID, out, time.Since(start))
			span.SetAttributes(
				attribute.String(observability.AttrSource, string(out.Target.Source)),
				attribute.String(observability.AttrReason, string(out.Reason)),
			)
		}
		span.End()
	}()

	if !msg.ChatKind.IsPrivate() {
		return r.resolveGroup(ctx, msg)
	}
	return r.resolvePrivate(ctx, userID, msg, req.Requirements)
}

func (r *Resolver) finish(ctx context.Context, userID int64, out domain.Outcome, elapsed time.Duration) {
	r.metrics.ObserveOutcome(out, elapsed)
	if out.OK() {
		r.log.Debug().
			Int64("user_id", userID).
			Int64("target", out.Target.ChatID).
			Str("source", string(out.Target.Source)).
			Dur("elapsed", elapsed).
			Msg("resolved")
		return
	}
	r.log.Info().Int64("user_id", userID).Str("reason", string(out.Reason)).Msg("resolution refused")
	if r.hooks != nil {
		r.hooks.Emit(ctx, hooks.EventResolutionRefused, hooks.Payload{UserID: userID, Reason: string(out.Reason)})
	}
}

func (r *Resolver) resolveGroup(ctx context.Context, msg domain.Message) (domain.Outcome, error) {
	chat, err := r.store.FindChat(ctx, msg.ChatID)
	if err != nil {
		r.metrics.Error("store")
		return domain.Outcome{}, fmt.Errorf("loading chat %d: %w", msg.ChatID, err)
	}
	return domain.Resolved(domain.Target{
		ChatID:    msg.ChatID,
		ChatTitle: titleOf(chat, msg.ChatTitle),
		Source:    domain.SourceChat,
	}), nil
}

func (r *Resolver) resolvePrivate(ctx context.Context, userID int64, msg domain.Message, req domain.Requirements) (domain.Outcome, error) {
	cached, hit, err := r.cache.Get(ctx, userID)
	if err != nil {
		r.metrics.Error("cache")
		return domain.Outcome{}, err
	}
	r.metrics.CacheLookup(hit)
	if hit {
		return domain.Resolved(cached), nil
	}

	conn, err := r.store.FindConnection(ctx, userID)
	if err != nil {
		r.metrics.Error("store")
		return domain.Outcome{}, fmt.Errorf("loading connection of user %d: %w", userID, err)
	}
	chatID, connected := conn.Active()
	if !connected {
		if req.RequireGroupOnly {
			return domain.Refused(domain.ReasonOnlyInGroups), nil
		}
		return domain.Resolved(domain.Target{
			ChatID:    userID,
			ChatTitle: domain.LocalChatTitle,
			Source:    domain.SourceLocal,
		}), nil
	}

	membership, err := r.store.FindUserMembership(ctx, userID)
	if err != nil {
		r.metrics.Error("store")
		return domain.Outcome{}, fmt.Errorf("loading membership of user %d: %w", userID, err)
	}
	if !membership.Contains(chatID) {
		return domain.Refused(domain.ReasonNotInChat), nil
	}

	admin := adminCheck{oracle: r.oracle, chatID: chatID, userID: userID}
	if req.RequireAdmin {
		ok, err := admin.get(ctx)
		if err != nil {
			r.metrics.Error("oracle")
			return domain.Outcome{}, err
		}
		if !ok {
			return domain.Refused(domain.ReasonMustBeAdmin), nil
		}
	}

	settings, err := r.store.FindChatConnectionSettings(ctx, chatID)
	if err != nil {
		r.metrics.Error("store")
		return domain.Outcome{}, fmt.Errorf("loading settings of chat %d: %w", chatID, err)
	}
	if settings.ForbidsUsers() {
		ok, err := admin.get(ctx)
		if err != nil {
			r.metrics.Error("oracle")
			return domain.Outcome{}, err
		}
		if !ok {
			return domain.Refused(domain.ReasonConnectionNotAllowed), nil
		}
	}

	chat, err := r.store.FindChat(ctx, chatID)
	if err != nil {
		r.metrics.Error("store")
		return domain.Outcome{}, fmt.Errorf("loading chat %d: %w", chatID, err)
	}
	target := domain.Target{
		ChatID:              chatID,
		ChatTitle:           titleOf(chat, msg.ChatTitle, strconv.FormatInt(chatID, 10)),
		IsPrivateConnection: true,
		Source:              domain.SourceConnection,
	}

	// The target is valid whether or not it could be memoized.
	if err := r.cache.Put(ctx, userID, target); err != nil {
		r.metrics.Error("cache_write")
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("caching resolution failed")
	}
	return domain.Resolved(target), nil
}

// adminCheck asks the oracle at most once per resolution.
type adminCheck struct {
	oracle Oracle
	chatID int64
	userID int64
	done   bool
	admin  bool
}

func (a *adminCheck) get(ctx context.Context) (bool, error) {
	if a.done {
		return a.admin, nil
	}
	admin, err := a.oracle.IsAdmin(ctx, a.chatID, a.userID)
	if err != nil {
		return false, fmt.Errorf("checking admin %d in chat %d: %w", a.userID, a.chatID, err)
	}
	a.done, a.admin = true, admin
	return admin, nil
}

// titleOf prefers the stored title, then the first non-empty fallback.
func titleOf(chat *domain.Chat, fallbacks ...string) string {
	if chat != nil && chat.Title != "" {
		return chat.Title
	}
	for _, f := range fallbacks {
		if f != "" {
			return f
		}
	}
	return ""
}
