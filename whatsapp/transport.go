package whatsapp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/akhmetov/weighbot/bot"
	"github.com/akhmetov/weighbot/core/logger"
	"github.com/akhmetov/weighbot/core/sender"
	"github.com/akhmetov/weighbot/metrics"
)

// maxWebhookBody bounds the accepted notification payload size.
const maxWebhookBody = 1 << 20

// Transport wires Green API webhooks to the engine and queues outbound
// deliveries on the dispatcher.
type Transport struct {
	engine    *bot.Engine
	client    *Client
	out       *sender.Dispatcher
	groupChat string
}

// TransportOptions configures the webhook transport.
type TransportOptions struct {
	Engine     *bot.Engine
	Client     *Client
	Dispatcher *sender.Dispatcher
	// GroupChat receives report broadcasts; empty disables broadcasting.
	GroupChat string
}

// NewTransport builds the transport. Engine, Client and Dispatcher are
// required.
func NewTransport(opts TransportOptions) (*Transport, error) {
	if opts.Engine == nil || opts.Client == nil || opts.Dispatcher == nil {
		return nil, errors.New("whatsapp: engine, client and dispatcher are required")
	}
	return &Transport{
		engine:    opts.Engine,
		client:    opts.Client,
		out:       opts.Dispatcher,
		groupChat: opts.GroupChat,
	}, nil
}

// HandleWebhook processes one Green API notification. Ignorable
// notifications and handled messages both answer 200 so the gateway does
// not redeliver; only malformed payloads answer 400.
func (t *Transport) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	in, ok, err := ParseWebhook(raw)
	if err != nil {
		logger.WA.Warn("webhook rejected",
			slog.String("event", "wa.webhook.bad"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if !ok {
		metrics.WebhooksIgnored.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	rid := logger.BuildRID(in.MsgID, in.Identity)
	ctx := logger.WithRID(r.Context(), rid)
	metrics.MessagesReceived.WithLabelValues("whatsapp").Inc()

	reply, perr := t.engine.Process(ctx, in)
	if perr != nil {
		metrics.ProcessErrors.WithLabelValues("whatsapp").Inc()
		logger.WA.Error("message processing failed",
			slog.String("event", "wa.process.fail"),
			slog.String("rid", rid),
			slog.String("identity", in.Identity),
			slog.String("err", logger.SanitizeLimit(perr.Error(), 256)),
		)
	}

	// Delivery outlives the request: queue on a detached context that keeps
	// only the correlation id.
	t.Deliver(logger.WithRID(context.Background(), rid), in.Chat, reply)
	w.WriteHeader(http.StatusOK)
}

// Deliver queues the reply text for the chat and the broadcast for the
// group, if any. Queue saturation is logged and dropped; chat delivery is
// best-effort by design.
func (t *Transport) Deliver(ctx context.Context, chatID string, reply bot.Reply) {
	if reply.Text != "" && chatID != "" {
		text := reply.Text
		t.enqueue(ctx, "wa.send_message", chatID, func() error {
			return t.client.SendMessage(ctx, chatID, text)
		})
		metrics.RepliesSent.WithLabelValues("whatsapp").Inc()
	}

	if reply.Broadcast == nil {
		return
	}
	if t.groupChat == "" {
		logger.WA.Debug("broadcast skipped",
			slog.String("event", "wa.broadcast.skip"),
			slog.String("status", "skip"),
		)
		return
	}
	bc := *reply.Broadcast
	group := ChatID(t.groupChat)
	if bc.MediaURL != "" {
		t.enqueue(ctx, "wa.send_file", group, func() error {
			return t.client.SendFileByURL(ctx, group, bc.MediaURL, bc.MediaName, bc.Text)
		})
	} else {
		t.enqueue(ctx, "wa.send_message", group, func() error {
			return t.client.SendMessage(ctx, group, bc.Text)
		})
	}
	metrics.BroadcastsSent.Inc()
}

func (t *Transport) enqueue(ctx context.Context, action, dest string, run func() error) {
	if err := t.out.Enqueue(ctx, action, dest, run); err != nil {
		logger.WA.Error("outbound enqueue failed",
			slog.String("event", "wa.enqueue.fail"),
			slog.String("op", action),
			slog.String("chat", dest),
			slog.String("err", err.Error()),
		)
	}
}
