package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

const pollTimeoutSeconds = 60

// ErrAlreadyRunning is returned by Start on a bot that is already polling.
var ErrAlreadyRunning = errors.New("telegram bot already running")

// Updates is the slice of *tgbotapi.BotAPI used for long polling.
type Updates interface {
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Dispatcher runs the command an event names. *commands.Handlers implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) (bool, error)
}

// Recorder keeps the chat list and membership snapshot current.
type Recorder interface {
	SaveChat(ctx context.Context, chat domain.Chat) error
	AddUserChat(ctx context.Context, userID, chatID int64) error
}

// Status is a point-in-time view of the polling loop.
type Status struct {
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	Handled   int64     `json:"handled"`
	Failed    int64     `json:"failed"`
}

// Bot long-polls the Bot API, records where users are seen and hands
// updates to the dispatcher.
type Bot struct {
	api      Updates
	dispatch Dispatcher
	recorder Recorder
	log      *logging.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	handled   atomic.Int64
	failed    atomic.Int64
}

func NewBot(api Updates, dispatch Dispatcher, recorder Recorder, log *logging.Logger) *Bot {
	return &Bot{api: api, dispatch: dispatch, recorder: recorder, log: log.Sub("telegram")}
}

// Start polls until ctx is cancelled or the update channel closes.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	b.running, b.startedAt = true, time.Now()
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)
	b.log.Info().Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info().Msg("stopped polling")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.Handle(ctx, u)
		}
	}
}

// Handle processes one update. Failures are logged and counted; they never
// stop the loop.
func (b *Bot) Handle(ctx context.Context, u tgbotapi.Update) {
	ev := EventFromUpdate(u)
	if ev == nil {
		return
	}
	msg, userID := domain.Unwrap(ev)
	b.record(ctx, msg, userID)

	handled, err := b.dispatch.Dispatch(ctx, ev)
	if err != nil {
		b.failed.Add(1)
		b.log.Error().Err(err).
			Int64("chat_id", msg.ChatID).
			Int64("user_id", userID).
			Int("update_id", u.UpdateID).
			Msg("command failed")
		return
	}
	if handled {
		b.handled.Add(1)
	}
}

// record notes that userID was seen in a group chat.
func (b *Bot) record(ctx context.Context, msg domain.Message, userID int64) {
	if b.recorder == nil || msg.ChatKind.IsPrivate() || msg.ChatID == 0 || userID == 0 {
		return
	}
	if msg.ChatTitle != "" {
		if err := b.recorder.SaveChat(ctx, domain.Chat{ID: msg.ChatID, Title: msg.ChatTitle}); err != nil {
			b.log.Warn().Err(err).Int64("chat_id", msg.ChatID).Msg("saving chat failed")
		}
	}
	if err := b.recorder.AddUserChat(ctx, userID, msg.ChatID); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", msg.ChatID).Int64("user_id", userID).Msg("recording membership failed")
	}
}

func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Status{Running: b.running, Handled: b.handled.Load(), Failed: b.failed.Load()}
	if b.running {
		s.StartedAt = b.startedAt
	}
	return s
}
