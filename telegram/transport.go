// Package telegram adapts Telegram long polling to the conversation engine.
// Telegram users are identified by their numeric user id, so the same engine
// and store serve both messenger transports.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/akhmetov/weighbot/bot"
	"github.com/akhmetov/weighbot/core/logger"
	"github.com/akhmetov/weighbot/core/sender"
	"github.com/akhmetov/weighbot/metrics"
)

// Options configures the Telegram transport.
type Options struct {
	Token string
	// GroupChatID receives report broadcasts; zero disables broadcasting.
	GroupChatID     int64
	LongPollTimeout time.Duration
	// RateLimit is the minimum interval between messages per user.
	RateLimit time.Duration

	Engine     *bot.Engine
	Dispatcher *sender.Dispatcher
}

// Transport runs the long-poll loop and feeds messages to the engine.
type Transport struct {
	tb     *tele.Bot
	engine *bot.Engine
	out    *sender.Dispatcher
	group  int64
}

// NewTransport initializes the bot and registers handlers.
func NewTransport(opts Options) (*Transport, error) {
	if opts.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if opts.Engine == nil || opts.Dispatcher == nil {
		return nil, errors.New("telegram: engine and dispatcher are required")
	}
	if opts.LongPollTimeout <= 0 {
		opts.LongPollTimeout = 10 * time.Second
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: opts.LongPollTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	t := &Transport{
		tb:     tb,
		engine: opts.Engine,
		out:    opts.Dispatcher,
		group:  opts.GroupChatID,
	}

	tb.Use(recoverMiddleware)
	if opts.RateLimit > 0 {
		tb.Use(rateLimitMiddleware(opts.RateLimit))
	}
	tb.Handle(tele.OnText, t.onMessage)
	tb.Handle(tele.OnPhoto, t.onMessage)

	return t, nil
}

// Run polls until the context ends.
func (t *Transport) Run(ctx context.Context) error {
	logger.TG.Info("polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "polling"),
	)
	go func() {
		<-ctx.Done()
		t.tb.Stop()
	}()
	t.tb.Start()
	return nil
}

func (t *Transport) onMessage(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	// Group chats are broadcast-only; the bot converses in private chats.
	if m.Chat.Type != tele.ChatPrivate {
		return nil
	}

	in := bot.Inbound{
		Identity: strconv.FormatInt(m.Sender.ID, 10),
		Chat:     strconv.FormatInt(m.Chat.ID, 10),
		MsgID:    strconv.Itoa(m.ID),
		Text:     m.Text,
	}
	if m.Photo != nil {
		in.HasMedia = true
		in.Text = m.Caption
		ref, err := t.photoURL(m.Photo)
		if err != nil {
			logger.TG.Warn("photo url resolve failed",
				slog.String("event", "tg.photo.fail"),
				slog.String("identity", in.Identity),
				slog.String("err", err.Error()),
			)
		}
		in.MediaRef = ref
	}

	rid := logger.BuildRID(in.MsgID, in.Identity)
	ctx := logger.WithRID(context.Background(), rid)
	metrics.MessagesReceived.WithLabelValues("telegram").Inc()

	reply, err := t.engine.Process(ctx, in)
	if err != nil {
		metrics.ProcessErrors.WithLabelValues("telegram").Inc()
		logger.TG.Error("message processing failed",
			slog.String("event", "tg.process.fail"),
			slog.String("rid", rid),
			slog.String("identity", in.Identity),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}

	t.deliver(ctx, m.Chat.ID, reply)
	return nil
}

func (t *Transport) deliver(ctx context.Context, chatID int64, reply bot.Reply) {
	if reply.Text != "" {
		text := reply.Text
		t.enqueue(ctx, "tg.send_message", chatID, func() error {
			_, err := t.tb.Send(tele.ChatID(chatID), text)
			return err
		})
		metrics.RepliesSent.WithLabelValues("telegram").Inc()
	}

	if reply.Broadcast == nil {
		return
	}
	if t.group == 0 {
		logger.TG.Debug("broadcast skipped",
			slog.String("event", "tg.broadcast.skip"),
			slog.String("status", "skip"),
		)
		return
	}
	bc := *reply.Broadcast
	if bc.MediaURL != "" {
		t.enqueue(ctx, "tg.send_photo", t.group, func() error {
			photo := &tele.Photo{File: tele.FromURL(bc.MediaURL), Caption: bc.Text}
			_, err := t.tb.Send(tele.ChatID(t.group), photo)
			return err
		})
	} else {
		t.enqueue(ctx, "tg.send_message", t.group, func() error {
			_, err := t.tb.Send(tele.ChatID(t.group), bc.Text)
			return err
		})
	}
	metrics.BroadcastsSent.Inc()
}

func (t *Transport) enqueue(ctx context.Context, action string, chatID int64, run func() error) {
	dest := strconv.FormatInt(chatID, 10)
	if err := t.out.Enqueue(ctx, action, dest, run); err != nil {
		logger.TG.Error("outbound enqueue failed",
			slog.String("event", "tg.enqueue.fail"),
			slog.String("op", action),
			slog.String("chat", dest),
			slog.String("err", err.Error()),
		)
	}
}

// photoURL resolves the direct download URL of the largest photo size.
func (t *Transport) photoURL(p *tele.Photo) (string, error) {
	f, err := t.tb.FileByID(p.FileID)
	if err != nil {
		return "", fmt.Errorf("telegram: file lookup: %w", err)
	}
	return fmt.Sprintf("%s/file/bot%s/%s", t.tb.URL, t.tb.Token, f.FilePath), nil
}
