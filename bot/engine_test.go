package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/akhmetov/weighbot/storage"
)

type fakeStore struct {
	drivers   map[string]*storage.Driver
	sessions  map[string]*storage.Session
	vehicles  map[string]float64
	weighings []storage.Weighing
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		drivers:  map[string]*storage.Driver{},
		sessions: map[string]*storage.Session{},
		vehicles: map[string]float64{},
	}
}

func (f *fakeStore) GetDriver(_ context.Context, phone string) (*storage.Driver, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	d, ok := f.drivers[phone]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) RegisterDriver(_ context.Context, phone, fullName, personalPhone, truck string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.drivers[phone] = &storage.Driver{
		Phone: phone, FullName: fullName, PersonalPhone: personalPhone,
		TruckNumber: truck, IsRegistered: true,
	}
	if _, ok := f.vehicles[truck]; !ok {
		f.vehicles[truck] = 0
	}
	return nil
}

func (f *fakeStore) UpdateDriverTruck(_ context.Context, phone, truck string) error {
	if f.failWith != nil {
		return f.failWith
	}
	d, ok := f.drivers[phone]
	if !ok || !d.IsRegistered {
		return errors.New("driver not registered")
	}
	d.TruckNumber = truck
	if _, ok := f.vehicles[truck]; !ok {
		f.vehicles[truck] = 0
	}
	return nil
}

func (f *fakeStore) GetLastWeight(_ context.Context, truck string) (float64, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return f.vehicles[truck], nil
}

func (f *fakeStore) SaveWeighing(_ context.Context, rec storage.WeighingRecord) (*storage.Weighing, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	prev := f.vehicles[rec.TruckNumber]
	w := storage.Weighing{
		ID:               int64(len(f.weighings) + 1),
		DriverPhone:      rec.DriverPhone,
		TruckNumber:      rec.TruckNumber,
		DriverName:       rec.DriverName,
		ClientName:       rec.ClientName,
		PreviousWeight:   prev,
		CurrentWeight:    rec.CurrentWeight,
		WeightDifference: rec.CurrentWeight - prev,
		StationName:      rec.StationName,
		PhotoPath:        rec.PhotoPath,
		CreatedAt:        time.Now(),
	}
	f.weighings = append(f.weighings, w)
	f.vehicles[rec.TruckNumber] = rec.CurrentWeight
	return &w, nil
}

func (f *fakeStore) GetSession(_ context.Context, phone string) (*storage.Session, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	s, ok := f.sessions[phone]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) SetSession(_ context.Context, phone, state string, draft json.RawMessage) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.sessions[phone] = &storage.Session{Phone: phone, State: state, Draft: draft}
	return nil
}

func (f *fakeStore) ClearSession(_ context.Context, phone string) error {
	if f.failWith != nil {
		return f.failWith
	}
	delete(f.sessions, phone)
	return nil
}

// GetStatistics mirrors the postgres aggregates: COUNT plus SUM/AVG of the
// recorded current weight per grouping.
func (f *fakeStore) GetStatistics(_ context.Context, since *time.Time) (*storage.Statistics, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	group := func(key func(storage.Weighing) (string, string)) []storage.StatRow {
		order := []string{}
		rows := map[string]*storage.StatRow{}
		for _, w := range f.weighings {
			if since != nil && w.CreatedAt.Before(*since) {
				continue
			}
			k, label := key(w)
			r, ok := rows[k]
			if !ok {
				r = &storage.StatRow{Key: k, Label: label}
				rows[k] = r
				order = append(order, k)
			}
			r.Count++
			r.Total += w.CurrentWeight
		}
		out := make([]storage.StatRow, 0, len(order))
		for _, k := range order {
			r := rows[k]
			r.Average = r.Total / float64(r.Count)
			out = append(out, *r)
		}
		return out
	}

	return &storage.Statistics{
		ByDriver: group(func(w storage.Weighing) (string, string) { return w.DriverPhone, w.DriverName }),
		ByTruck:  group(func(w storage.Weighing) (string, string) { return w.TruckNumber, w.TruckNumber }),
		ByClient: group(func(w storage.Weighing) (string, string) { return w.ClientName, w.ClientName }),
	}, nil
}

type fakeDownloader struct {
	path string
	err  error
}

func (f *fakeDownloader) Download(_ context.Context, _, _ string) (string, error) {
	return f.path, f.err
}

const testIdentity = "79991234567"

func newTestEngine(t *testing.T, st *fakeStore, dl MediaDownloader) *Engine {
	t.Helper()
	e, err := NewEngine(Options{
		Store:       st,
		Media:       dl,
		StationName: "Весовая №1",
		Now:         func() time.Time { return time.Date(2026, 8, 24, 15, 30, 45, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func send(t *testing.T, e *Engine, text string) Reply {
	t.Helper()
	r, err := e.Process(context.Background(), Inbound{Identity: testIdentity, Text: text})
	if err != nil {
		t.Fatalf("Process(%q): %v", text, err)
	}
	return r
}

func registerDriver(st *fakeStore) {
	st.drivers[testIdentity] = &storage.Driver{
		Phone: testIdentity, FullName: "Иван Петров", PersonalPhone: "79990000000",
		TruckNumber: "A123", IsRegistered: true,
	}
	st.vehicles["A123"] = 0
}

func TestRegistrationFlow(t *testing.T) {
	st := newFakeStore()
	e := newTestEngine(t, st, nil)

	// Any first message from an unknown identity starts registration.
	r := send(t, e, "привет")
	if !strings.Contains(r.Text, "ФИО") {
		t.Fatalf("expected registration start, got %q", r.Text)
	}

	r = send(t, e, "Иван Петров")
	if !strings.Contains(r.Text, "Иван Петров") {
		t.Fatalf("expected name echo, got %q", r.Text)
	}

	send(t, e, "+7 (999) 000-00-00")
	r = send(t, e, "a123bc")
	if !strings.Contains(r.Text, "Регистрация завершена") {
		t.Fatalf("expected registration done, got %q", r.Text)
	}

	d := st.drivers[testIdentity]
	if d == nil || !d.IsRegistered {
		t.Fatal("driver not registered")
	}
	if d.TruckNumber != "A123BC" {
		t.Errorf("truck = %q, want A123BC (uppercased)", d.TruckNumber)
	}
	if d.PersonalPhone != "79990000000" {
		t.Errorf("personal phone = %q, want digits only", d.PersonalPhone)
	}
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("session should be cleared after registration")
	}
	if _, ok := st.vehicles["A123BC"]; !ok {
		t.Error("vehicle row should exist for the registered truck")
	}
}

func TestRegistrationInvalidInputKeepsState(t *testing.T) {
	st := newFakeStore()
	e := newTestEngine(t, st, nil)

	send(t, e, "старт")
	r := send(t, e, "ab")
	if r.Text == "" || strings.Contains(r.Text, "телефон") {
		t.Fatalf("short name must be rejected, got %q", r.Text)
	}
	if got := st.sessions[testIdentity].State; got != string(StateRegistrationName) {
		t.Errorf("state = %q, want unchanged REGISTRATION_NAME", got)
	}
}

func TestNewReportFlow(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "1")
	send(t, e, "Acme")
	r := send(t, e, "15000")
	if !strings.Contains(r.Text, "фото") {
		t.Fatalf("expected photo prompt, got %q", r.Text)
	}
	r = send(t, e, "пропустить")
	if !strings.Contains(r.Text, "Сохранить") {
		t.Fatalf("expected confirmation, got %q", r.Text)
	}
	r = send(t, e, "да")
	if !strings.Contains(r.Text, "Отчёт сохранён") {
		t.Fatalf("expected saved message, got %q", r.Text)
	}
	if r.Broadcast == nil {
		t.Fatal("expected group broadcast on commit")
	}
	if r.Broadcast.MediaURL != "" {
		t.Error("skipped photo must not attach media to broadcast")
	}

	if len(st.weighings) != 1 {
		t.Fatalf("weighings = %d, want 1", len(st.weighings))
	}
	w := st.weighings[0]
	if w.PreviousWeight != 0 || w.CurrentWeight != 15000 || w.WeightDifference != 15000 {
		t.Errorf("weighing = prev %v cur %v diff %v, want 0/15000/15000",
			w.PreviousWeight, w.CurrentWeight, w.WeightDifference)
	}
	if w.ClientName != "Acme" {
		t.Errorf("client = %q, want Acme", w.ClientName)
	}
	if st.vehicles["A123"] != 15000 {
		t.Errorf("vehicle last weight = %v, want 15000", st.vehicles["A123"])
	}
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("session should be cleared after commit")
	}
}

func TestNegativeWeightRejected(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "1")
	send(t, e, "Acme")
	before := string(st.sessions[testIdentity].Draft)

	r := send(t, e, "-50")
	if !strings.Contains(r.Text, "отрицательн") {
		t.Fatalf("expected negative-weight message, got %q", r.Text)
	}
	sess := st.sessions[testIdentity]
	if sess.State != string(StateAwaitingWeight) {
		t.Errorf("state = %q, want AWAITING_WEIGHT", sess.State)
	}
	if string(sess.Draft) != before {
		t.Error("draft must not change on rejected input")
	}
}

func TestExitTokenPreemptsFlow(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "1")
	send(t, e, "Acme")
	r := send(t, e, "0")
	if !strings.Contains(r.Text, "Главное меню") {
		t.Fatalf("expected main menu, got %q", r.Text)
	}
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("exit token must clear the session")
	}

	// The word form works from any state too.
	send(t, e, "1")
	send(t, e, "МЕНЮ")
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("меню must clear the session")
	}
}

func TestMainMenuShowsNameAndTruck(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	r := send(t, e, "0")
	if !strings.Contains(r.Text, "Иван Петров") {
		t.Errorf("menu must show the driver name:\n%s", r.Text)
	}
	if !strings.Contains(r.Text, "A123") {
		t.Errorf("menu must show the current truck:\n%s", r.Text)
	}

	// The fallback for unknown commands shows the same header.
	r = send(t, e, "что?")
	if !strings.Contains(r.Text, "A123") {
		t.Errorf("unknown-command menu must show the truck:\n%s", r.Text)
	}
}

func TestReRegisterTokenRestartsRegistration(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "1")
	r := send(t, e, "3")
	if !strings.Contains(r.Text, "ФИО") {
		t.Fatalf("expected registration restart, got %q", r.Text)
	}
	if got := st.sessions[testIdentity].State; got != string(StateRegistrationName) {
		t.Errorf("state = %q, want REGISTRATION_NAME", got)
	}
}

func TestConfirmationTokens(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "1")
	send(t, e, "Acme")
	send(t, e, "15000")
	send(t, e, "пропустить")

	// Unknown token re-prompts without mutating state.
	r := send(t, e, "возможно")
	if !strings.Contains(r.Text, "да") {
		t.Fatalf("expected confirm re-prompt, got %q", r.Text)
	}
	if st.sessions[testIdentity].State != string(StateAwaitingConfirmation) {
		t.Error("state must stay AWAITING_CONFIRMATION")
	}

	r = send(t, e, "нет")
	if !strings.Contains(r.Text, "отменён") {
		t.Fatalf("expected cancellation, got %q", r.Text)
	}
	if len(st.weighings) != 0 {
		t.Error("negative confirmation must not commit")
	}
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("session should be cleared on cancel")
	}
}

func TestTruckChange(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "2")
	r := send(t, e, "b777xx")
	if !strings.Contains(r.Text, "B777XX") {
		t.Fatalf("expected updated truck echo, got %q", r.Text)
	}
	if st.drivers[testIdentity].TruckNumber != "B777XX" {
		t.Error("driver truck not updated")
	}
	if _, ok := st.vehicles["B777XX"]; !ok {
		t.Error("vehicle row should exist for the new truck")
	}
}

func TestStatisticsEmpty(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "4")
	r := send(t, e, "1")
	if r.Text != msgStatsEmpty {
		t.Fatalf("expected empty statistics message, got %q", r.Text)
	}
	if _, ok := st.sessions[testIdentity]; ok {
		t.Error("session should be cleared after statistics reply")
	}
}

func TestStatisticsPeriodThreeIsNotReRegister(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "4")
	r := send(t, e, "3")
	if r.Text != msgStatsEmpty {
		t.Fatalf("expected 30-day statistics, got %q", r.Text)
	}
	if sess, ok := st.sessions[testIdentity]; ok {
		t.Errorf("unexpected session %q after statistics", sess.State)
	}
}

func TestStatisticsTotalsCurrentWeight(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	for _, in := range []string{"1", "Acme", "15000", "пропустить", "да"} {
		send(t, e, in)
	}
	for _, in := range []string{"1", "Acme", "12500.5", "пропустить", "да"} {
		send(t, e, in)
	}

	send(t, e, "4")
	r := send(t, e, "4")
	if !strings.Contains(r.Text, "2 взвеш.") {
		t.Fatalf("expected count of 2 weighings, got:\n%s", r.Text)
	}
	// Totals sum the recorded weights, not the signed differences: the
	// second weighing's difference is -2499.5, which must not drag the
	// total down to 12500.5.
	if !strings.Contains(r.Text, "всего 27500.5 кг") {
		t.Errorf("expected total over current weights, got:\n%s", r.Text)
	}
	if strings.Contains(r.Text, "всего 12500.5 кг") {
		t.Errorf("total must not aggregate differences:\n%s", r.Text)
	}
}

func TestStatisticsBadPeriodReprompts(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	send(t, e, "4")
	r := send(t, e, "7")
	if r.Text != msgStatsBadPeriod {
		t.Fatalf("expected bad-period message, got %q", r.Text)
	}
	if st.sessions[testIdentity].State != string(StateAwaitingStatsPeriod) {
		t.Error("state must stay AWAITING_STATS_PERIOD")
	}
}

func TestPhotoDownloadFailureKeepsState(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, &fakeDownloader{err: ErrMediaTooLarge})

	send(t, e, "1")
	send(t, e, "Acme")
	send(t, e, "15000")

	r, err := e.Process(context.Background(), Inbound{
		Identity: testIdentity, HasMedia: true, MediaRef: "https://example.com/p.jpg",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if r.Text != msgPhotoTooLarge {
		t.Fatalf("expected too-large message, got %q", r.Text)
	}
	if st.sessions[testIdentity].State != string(StateAwaitingPhoto) {
		t.Error("failed download must leave state at AWAITING_PHOTO")
	}
}

func TestPhotoAcceptedAttachesToBroadcast(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, &fakeDownloader{path: "uploads/photos/p.jpg"})

	send(t, e, "1")
	send(t, e, "Acme")
	send(t, e, "15000")

	r, err := e.Process(context.Background(), Inbound{
		Identity: testIdentity, HasMedia: true, MediaRef: "https://example.com/p.jpg",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(r.Text, "Фото: есть") {
		t.Fatalf("expected confirmation with photo, got %q", r.Text)
	}

	r = send(t, e, "да")
	if r.Broadcast == nil || r.Broadcast.MediaURL != "https://example.com/p.jpg" {
		t.Fatal("broadcast must carry the photo URL")
	}
	if !strings.HasPrefix(r.Broadcast.MediaName, "A123_") || !strings.HasSuffix(r.Broadcast.MediaName, ".jpg") {
		t.Errorf("unexpected media name %q", r.Broadcast.MediaName)
	}
	if st.weighings[0].PhotoPath != "uploads/photos/p.jpg" {
		t.Errorf("photo path = %q", st.weighings[0].PhotoPath)
	}
}

func TestPersistenceFailureReportsAndReturnsError(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	st.failWith = errors.New("connection refused")
	r, err := e.Process(context.Background(), Inbound{Identity: testIdentity, Text: "1"})
	if err == nil {
		t.Fatal("expected error propagation")
	}
	if r.Text != msgPersistenceError {
		t.Fatalf("expected persistence message, got %q", r.Text)
	}
}

func TestEmptyMessageIgnored(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	r := send(t, e, "   ")
	if r.Text != "" {
		t.Fatalf("blank message must produce no reply, got %q", r.Text)
	}
}

func TestSecondReportDiffsAgainstFirst(t *testing.T) {
	st := newFakeStore()
	registerDriver(st)
	e := newTestEngine(t, st, nil)

	for _, in := range []string{"1", "Acme", "15000", "пропустить", "да"} {
		send(t, e, in)
	}
	for _, in := range []string{"1", "Acme", "12 500,5", "пропустить", "да"} {
		send(t, e, in)
	}

	if len(st.weighings) != 2 {
		t.Fatalf("weighings = %d, want 2", len(st.weighings))
	}
	w := st.weighings[1]
	if w.PreviousWeight != 15000 || w.CurrentWeight != 12500.5 || w.WeightDifference != -2499.5 {
		t.Errorf("second weighing = prev %v cur %v diff %v", w.PreviousWeight, w.CurrentWeight, w.WeightDifference)
	}
}
