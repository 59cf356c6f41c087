// Package bot implements the conversation engine: a per-user finite state
// machine driven by free-form chat messages. The engine keeps no state in
// memory; the current state and flow draft live in the session store, so any
// process instance can handle any message.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/akhmetov/weighbot/bot/validate"
	"github.com/akhmetov/weighbot/core/logger"
	"github.com/akhmetov/weighbot/storage"
)

// Inbound is one normalized incoming message, transport-agnostic. Identity
// is the driver's phone in digits; MediaRef is the transport's download
// reference when the message carries a photo.
type Inbound struct {
	Identity string
	Chat     string
	MsgID    string
	Text     string
	HasMedia bool
	MediaRef string
}

// Reply is what the transport should deliver back. An empty Text means no
// reply. Broadcast, when set, additionally goes to the configured group chat.
type Reply struct {
	Text      string
	Broadcast *Broadcast
}

// Options configures the engine.
type Options struct {
	Store Store
	Media MediaDownloader
	// StationName is stamped on every weighing row, identifying this
	// deployment's weighing station.
	StationName string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Engine routes messages through the state machine. It is safe for
// concurrent use: all per-user state lives in the store.
type Engine struct {
	store   Store
	media   MediaDownloader
	station string
	now     func() time.Time
}

// NewEngine builds an engine. Store is required; Media may be nil, in which
// case photo attachments are answered with the download-failure prompt.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("bot: store is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:   opts.Store,
		media:   opts.Media,
		station: opts.StationName,
		now:     opts.Now,
	}, nil
}

// Process handles one inbound message and returns the reply. Persistence
// failures produce a user-facing error reply plus the underlying error;
// the session is left unchanged so the user can simply retry.
func (e *Engine) Process(ctx context.Context, in Inbound) (reply Reply, err error) {
	ctx = logger.WithMessageMeta(ctx, in.MsgID, in.Identity, in.Chat)

	defer func() {
		if p := recover(); p != nil {
			logger.ENG.Error("handler panic",
				slog.String("event", "engine.panic"),
				slog.String("identity", in.Identity),
				slog.String("err", logger.SanitizeLimit(fmt.Sprint(p), 256)),
			)
			reply = Reply{Text: msgInternalError}
			err = fmt.Errorf("engine panic: %v", p)
		}
	}()

	text := strings.TrimSpace(in.Text)
	if text == "" && !in.HasMedia {
		return Reply{}, nil
	}

	driver, err := e.store.GetDriver(ctx, in.Identity)
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	registered := driver != nil && driver.IsRegistered

	sess, err := e.store.GetSession(ctx, in.Identity)
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}

	// Global tokens pre-empt everything, including active flows.
	if text != "" && isExitToken(text) {
		return e.showMenu(ctx, in.Identity, driver, registered)
	}
	// In the statistics step digits select a period, so the re-register
	// token is not global there; it stays reachable from the menu.
	if text == tokenReRegister && (sess == nil || State(sess.State) != StateAwaitingStatsPeriod) {
		return e.startRegistration(ctx, in.Identity)
	}

	if !registered {
		return e.handleUnregistered(ctx, in, sess)
	}

	if sess != nil {
		return e.dispatch(ctx, in, driver, sess)
	}

	return e.handleMenuSelection(ctx, in, driver, text)
}

func (e *Engine) showMenu(ctx context.Context, identity string, driver *storage.Driver, registered bool) (Reply, error) {
	if err := e.store.ClearSession(ctx, identity); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	if !registered {
		return Reply{Text: msgMenuUnregistered}, nil
	}
	return Reply{Text: msgMainMenu(driver.FullName, driver.TruckNumber)}, nil
}

func (e *Engine) startRegistration(ctx context.Context, identity string) (Reply, error) {
	err := e.store.SetSession(ctx, identity, string(StateRegistrationName), marshalDraft(RegistrationDraft{}))
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	logger.Debug(ctx, "engine", "flow.start",
		slog.String("flow", "registration"),
		slog.String("identity", identity),
	)
	return Reply{Text: msgRegistrationStart}, nil
}

// handleUnregistered routes everything through the registration track. Any
// input not consumed by an active registration state starts the track fresh.
func (e *Engine) handleUnregistered(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	if sess == nil || !registrationStates[State(sess.State)] {
		return e.startRegistration(ctx, in.Identity)
	}
	return e.dispatchRegistration(ctx, in, sess)
}

func (e *Engine) handleMenuSelection(ctx context.Context, in Inbound, driver *storage.Driver, text string) (Reply, error) {
	switch text {
	case tokenNewReport:
		return e.startReport(ctx, in.Identity, driver)
	case tokenTruckSwap:
		err := e.store.SetSession(ctx, in.Identity, string(StateChangingTruck), marshalDraft(TruckChangeDraft{}))
		if err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		return Reply{Text: msgAskNewTruck}, nil
	case tokenStatistics:
		err := e.store.SetSession(ctx, in.Identity, string(StateAwaitingStatsPeriod), marshalDraft(struct{}{}))
		if err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		return Reply{Text: msgStatsPeriodPrompt}, nil
	}
	return Reply{Text: msgUnknownCommand(driver.FullName, driver.TruckNumber)}, nil
}

func (e *Engine) startReport(ctx context.Context, identity string, driver *storage.Driver) (Reply, error) {
	draft := ReportDraft{
		TruckNumber: driver.TruckNumber,
		DriverName:  driver.FullName,
	}
	err := e.store.SetSession(ctx, identity, string(StateAwaitingClient), marshalDraft(draft))
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	logger.Debug(ctx, "engine", "flow.start",
		slog.String("flow", "report"),
		slog.String("identity", identity),
		slog.String("truck", driver.TruckNumber),
	)
	return Reply{Text: msgAskClient}, nil
}

// dispatch routes a message for a registered driver with an active session.
// A session holding an unknown state is treated as corrupt: it is cleared
// and the menu shown.
func (e *Engine) dispatch(ctx context.Context, in Inbound, driver *storage.Driver, sess *storage.Session) (Reply, error) {
	state := State(sess.State)

	if registrationStates[state] {
		return e.dispatchRegistration(ctx, in, sess)
	}

	switch state {
	case StateAwaitingClient:
		return e.handleClient(ctx, in, sess)
	case StateAwaitingWeight:
		return e.handleWeight(ctx, in, sess)
	case StateAwaitingPhoto:
		return e.handlePhoto(ctx, in, sess)
	case StateAwaitingConfirmation:
		return e.handleConfirmation(ctx, in, sess)
	case StateChangingTruck:
		return e.handleTruckChange(ctx, in)
	case StateAwaitingStatsPeriod:
		return e.handleStatsPeriod(ctx, in)
	}

	logger.ENG.Warn("unknown session state",
		slog.String("event", "engine.state.unknown"),
		slog.String("identity", in.Identity),
		slog.String("state", sess.State),
	)
	return e.showMenu(ctx, in.Identity, driver, true)
}

func (e *Engine) dispatchRegistration(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	draft, derr := decodeRegistrationDraft(sess.Draft)
	if derr != nil {
		// Corrupt draft: restart the flow rather than loop on it.
		return e.startRegistration(ctx, in.Identity)
	}

	switch State(sess.State) {
	case StateRegistrationName:
		name, msg := validate.Name(in.Text)
		if msg != "" {
			return Reply{Text: msg}, nil
		}
		draft.FullName = name
		if err := e.advance(ctx, in.Identity, StateRegistrationPhone, draft); err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		return Reply{Text: msgRegistrationNameOK(name)}, nil

	case StateRegistrationPhone:
		phone, msg := validate.Phone(in.Text)
		if msg != "" {
			return Reply{Text: msg}, nil
		}
		draft.PersonalPhone = phone
		if err := e.advance(ctx, in.Identity, StateRegistrationTruck, draft); err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		return Reply{Text: msgAskTruck}, nil

	case StateRegistrationTruck:
		truck, msg := validate.Truck(in.Text)
		if msg != "" {
			return Reply{Text: msg}, nil
		}
		err := e.store.RegisterDriver(ctx, in.Identity, draft.FullName, draft.PersonalPhone, truck)
		if err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		if err := e.store.ClearSession(ctx, in.Identity); err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		logger.Info(ctx, "engine", "flow.done",
			slog.String("flow", "registration"),
			slog.String("identity", in.Identity),
			slog.String("truck", truck),
		)
		return Reply{Text: msgRegistrationDone(draft.FullName, truck)}, nil
	}

	return e.startRegistration(ctx, in.Identity)
}

func (e *Engine) handleClient(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	client := strings.TrimSpace(in.Text)
	if len([]rune(client)) < 2 {
		return Reply{Text: msgClientTooShort}, nil
	}

	draft, derr := decodeReportDraft(sess.Draft)
	if derr != nil {
		return e.showMenuAfterCorruptDraft(ctx, in.Identity, derr)
	}
	draft.ClientName = client
	if err := e.advance(ctx, in.Identity, StateAwaitingWeight, draft); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	return Reply{Text: msgAskWeight}, nil
}

func (e *Engine) handleWeight(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	weight, msg := validate.Weight(in.Text)
	if msg != "" {
		return Reply{Text: msg}, nil
	}

	draft, derr := decodeReportDraft(sess.Draft)
	if derr != nil {
		return e.showMenuAfterCorruptDraft(ctx, in.Identity, derr)
	}

	// Display values only. The commit transaction re-reads the last weight
	// and its figures are the ones that persist.
	prev, err := e.store.GetLastWeight(ctx, draft.TruckNumber)
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	draft.PreviousWeight = prev
	draft.CurrentWeight = weight
	draft.WeightDifference = weight - prev

	if err := e.advance(ctx, in.Identity, StateAwaitingPhoto, draft); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	return Reply{Text: msgAskPhoto}, nil
}

// handlePhoto covers AWAITING_PHOTO: a media attachment goes through the
// photo-intake path, the skip token advances without a photo, anything else
// re-prompts. A failed download leaves the session untouched.
func (e *Engine) handlePhoto(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	draft, derr := decodeReportDraft(sess.Draft)
	if derr != nil {
		return e.showMenuAfterCorruptDraft(ctx, in.Identity, derr)
	}

	switch {
	case in.HasMedia:
		if e.media == nil {
			return Reply{Text: msgPhotoBadRef}, nil
		}
		path, err := e.media.Download(ctx, in.MediaRef, in.Identity)
		if err != nil {
			logger.ENG.Warn("photo download failed",
				slog.String("event", "engine.photo.fail"),
				slog.String("identity", in.Identity),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			switch {
			case errors.Is(err, ErrMediaTooLarge):
				return Reply{Text: msgPhotoTooLarge}, nil
			case errors.Is(err, ErrMediaNotImage):
				return Reply{Text: msgPhotoNotImage}, nil
			default:
				return Reply{Text: msgPhotoBadRef}, nil
			}
		}
		draft.PhotoReceived = true
		draft.PhotoPath = path
		draft.PhotoURL = in.MediaRef

	case isSkipToken(in.Text):
		// advance without a photo

	default:
		return Reply{Text: msgAskPhoto}, nil
	}

	if err := e.advance(ctx, in.Identity, StateAwaitingConfirmation, draft); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	return Reply{Text: msgConfirmReport(draft)}, nil
}

func (e *Engine) handleConfirmation(ctx context.Context, in Inbound, sess *storage.Session) (Reply, error) {
	draft, derr := decodeReportDraft(sess.Draft)
	if derr != nil {
		return e.showMenuAfterCorruptDraft(ctx, in.Identity, derr)
	}

	switch {
	case isNegative(in.Text):
		if err := e.store.ClearSession(ctx, in.Identity); err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		logger.Debug(ctx, "engine", "flow.cancel",
			slog.String("flow", "report"),
			slog.String("identity", in.Identity),
		)
		return Reply{Text: msgReportCancelled}, nil

	case isAffirmative(in.Text):
		saved, err := e.store.SaveWeighing(ctx, storage.WeighingRecord{
			DriverPhone:   in.Identity,
			TruckNumber:   draft.TruckNumber,
			DriverName:    draft.DriverName,
			ClientName:    draft.ClientName,
			CurrentWeight: draft.CurrentWeight,
			StationName:   e.station,
			PhotoPath:     draft.PhotoPath,
		})
		if err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		if err := e.store.ClearSession(ctx, in.Identity); err != nil {
			return Reply{Text: msgPersistenceError}, err
		}
		bc := composeBroadcast(saved, draft, e.now())
		logger.Info(ctx, "engine", "flow.done",
			slog.String("flow", "report"),
			slog.String("identity", in.Identity),
			slog.Int64("weighing_id", saved.ID),
			slog.String("truck", saved.TruckNumber),
			slog.Float64("weight", saved.CurrentWeight),
			slog.Float64("diff", saved.WeightDifference),
		)
		return Reply{Text: msgReportSaved(saved), Broadcast: &bc}, nil
	}

	return Reply{Text: msgConfirmPrompt}, nil
}

func (e *Engine) handleTruckChange(ctx context.Context, in Inbound) (Reply, error) {
	truck, msg := validate.Truck(in.Text)
	if msg != "" {
		return Reply{Text: msg}, nil
	}
	if err := e.store.UpdateDriverTruck(ctx, in.Identity, truck); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	if err := e.store.ClearSession(ctx, in.Identity); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	logger.Info(ctx, "engine", "flow.done",
		slog.String("flow", "truck_change"),
		slog.String("identity", in.Identity),
		slog.String("truck", truck),
	)
	return Reply{Text: msgTruckUpdated(truck)}, nil
}

func (e *Engine) handleStatsPeriod(ctx context.Context, in Inbound) (Reply, error) {
	since, label, ok := periodSince(e.now(), in.Text)
	if !ok {
		return Reply{Text: msgStatsBadPeriod}, nil
	}

	stats, err := e.store.GetStatistics(ctx, since)
	if err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	if err := e.store.ClearSession(ctx, in.Identity); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	logger.Debug(ctx, "engine", "stats.served",
		slog.String("identity", in.Identity),
		slog.String("period", label),
	)
	return Reply{Text: formatStatistics(stats, label)}, nil
}

// advance writes the next state with its draft, fully replacing the session.
func (e *Engine) advance(ctx context.Context, identity string, next State, draft any) error {
	if err := e.store.SetSession(ctx, identity, string(next), marshalDraft(draft)); err != nil {
		return err
	}
	logger.Debug(ctx, "engine", "state.transition",
		slog.String("identity", identity),
		slog.String("next_state", string(next)),
	)
	return nil
}

func (e *Engine) showMenuAfterCorruptDraft(ctx context.Context, identity string, cause error) (Reply, error) {
	logger.ENG.Warn("corrupt session draft",
		slog.String("event", "engine.draft.corrupt"),
		slog.String("identity", identity),
		slog.String("err", cause.Error()),
	)
	if err := e.store.ClearSession(ctx, identity); err != nil {
		return Reply{Text: msgPersistenceError}, err
	}
	return Reply{Text: msgInternalError}, nil
}
