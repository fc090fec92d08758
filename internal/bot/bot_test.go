package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/fingames/core/telegram"
	"github.com/m3rciful/fingames/core/telegram/state"
	"github.com/m3rciful/fingames/internal/catalog"
	"github.com/m3rciful/fingames/internal/moderation"
	"github.com/m3rciful/fingames/internal/registration"
	"github.com/m3rciful/fingames/internal/storage/memory"
	"github.com/m3rciful/fingames/internal/voucher"
	"github.com/m3rciful/fingames/internal/workflow"
)

const (
	moderatorID = int64(900)
	labelKupi   = "🎲 Купимания"
	labelMir    = "🌍 Мир проектов"
)

type sentMessage struct {
	what any
	opts []any
}

func (m sentMessage) text() string {
	s, _ := m.what.(string)
	return s
}

func (m sentMessage) markup() *tele.ReplyMarkup {
	for _, o := range m.opts {
		if so, ok := o.(*tele.SendOptions); ok && so != nil {
			return so.ReplyMarkup
		}
	}
	return nil
}

// fakeContext implements the part of tele.Context the handlers touch.
type fakeContext struct {
	tele.Context
	user  *tele.User
	text  string
	args  []string
	cb    *tele.Callback
	store map[string]any
	sent  []sentMessage
}

func newContext(userID int64, text string) *fakeContext {
	return &fakeContext{
		user:  &tele.User{ID: userID, Username: "player"},
		text:  text,
		store: map[string]any{},
	}
}

func (f *fakeContext) Sender() *tele.User { return f.user }
func (f *fakeContext) Chat() *tele.Chat { return &tele.Chat{ID: f.user.ID, Type: tele.ChatPrivate} }
func (f *fakeContext) Update() tele.Update { return tele.Update{ID: 1} }
func (f *fakeContext) Text() string { return f.text }
func (f *fakeContext) Args() []string { return f.args }
func (f *fakeContext) Callback() *tele.Callback { return f.cb }
func (f *fakeContext) Get(key string) any { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }

func (f *fakeContext) Respond(...*tele.CallbackResponse) error { return nil }

func (f *fakeContext) Send(what any, opts ...any) error {
	f.sent = append(f.sent, sentMessage{what: what, opts: opts})
	return nil
}

func (f *fakeContext) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeSender struct {
	mu     sync.Mutex
	failTo int64
	got    map[int64][]string
}

func (s *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := to.(*tele.User)
	if u.ID == s.failTo {
		return nil, errors.New("bot was blocked by the user")
	}
	if s.got == nil {
		s.got = map[int64][]string{}
	}
	s.got[u.ID] = append(s.got[u.ID], what.(string))
	return &tele.Message{}, nil
}

type fixture struct {
	h        *Handlers
	store    *memory.Store
	sessions *state.MemoryManager
	sender   *fakeSender
}

func newFixture(t *testing.T, cfg catalog.Config) *fixture {
	t.Helper()
	cat, err := catalog.New(cfg)
	require.NoError(t, err)

	store := memory.New()
	sessions := state.NewMemoryManager()
	mods := moderation.NewModerators(moderatorID, 901)

	notifier := NewNotifier(mods, cat)
	sender := &fakeSender{}
	notifier.Attach(sender, nil)

	engine := workflow.NewEngine(store, cat, sessions, voucher.NewGenerator(store), workflow.WithListener(notifier))
	mod := moderation.NewService(store, cat)
	h := New(engine, mod, mods, WithExportDir(t.TempDir()))
	return &fixture{h: h, store: store, sessions: sessions, sender: sender}
}

func slotCallback(game int, date, tm string) *tele.Callback {
	return &tele.Callback{Data: "\f" + cbSlot + "|" + strconv.Itoa(game) + "|" + date + "|" + tm}
}

func (f *fixture) register(t *testing.T, userID int64) registration.Registration {
	t.Helper()
	require.NoError(t, f.h.onStart(newContext(userID, "/start")))
	require.NoError(t, f.h.onText(newContext(userID, labelKupi)))
	c := newContext(userID, "")
	c.cb = slotCallback(0, "08.10.2025", "11:20-12:00")
	require.NoError(t, f.h.onSlot(c))

	regs, err := f.store.ListByParticipant(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	return regs[0]
}

func TestStartOffersGames(t *testing.T) {
	f := newFixture(t, catalog.Default())
	c := newContext(1, "/start")

	require.NoError(t, f.h.onStart(c))

	msg := c.last(t)
	require.Equal(t, textWelcome, msg.text())
	require.NotNil(t, msg.markup())
	require.Len(t, msg.markup().ReplyKeyboard, 2)
	require.Equal(t, labelKupi, msg.markup().ReplyKeyboard[0][0].Text)
	require.Equal(t, workflow.StateChoosingGame, f.sessions.GetState(1))
}

func TestGameChoiceOffersSlotsWithCancel(t *testing.T) {
	f := newFixture(t, catalog.Default())
	require.NoError(t, f.h.onStart(newContext(1, "/start")))

	c := newContext(1, labelKupi)
	require.NoError(t, f.h.onText(c))

	msg := c.last(t)
	require.Equal(t, chooseSlotText(labelKupi), msg.text())
	rows := msg.markup().InlineKeyboard
	require.Len(t, rows, 4)
	require.Len(t, rows[0], 2)
	require.Equal(t, "08.10.2025 11:20-12:00", rows[0][0].Text)
	require.Equal(t, "0|08.10.2025|11:20-12:00", rows[0][0].Data)
	require.Equal(t, textCancelButton, rows[3][0].Text)
	require.Equal(t, workflow.StateChoosingSlot, f.sessions.GetState(1))
}

func TestSlotChoiceIssuesVoucherAndNotifiesModerators(t *testing.T) {
	f := newFixture(t, catalog.Default())
	reg := f.register(t, 7)

	require.True(t, voucher.Valid(reg.VoucherCode))
	require.Equal(t, "08.10.2025", reg.SlotDate)
	require.Equal(t, state.StateIdle, f.sessions.GetState(7))

	for _, id := range []int64{moderatorID, 901} {
		require.Len(t, f.sender.got[id], 1)
		require.Contains(t, f.sender.got[id][0], "✅ Новый ID")
		require.Contains(t, f.sender.got[id][0], "ID: "+reg.VoucherCode)
	}
}

func TestRegisteredTextShowsCode(t *testing.T) {
	reg := registration.Registration{Game: "Купимания", SlotDate: "08.10.2025", SlotTime: "11:20-12:00", VoucherCode: "FG-AB12CD"}
	text := registeredText(reg, labelKupi)

	require.Contains(t, text, "`FG-AB12CD`")
	require.Contains(t, text, `08\.10\.2025 11:20\-12:00`)
	require.True(t, strings.HasPrefix(text, "✅ Регистрация завершена\\!"))
}

func TestSecondChoiceOfSameGameReturnsExistingCode(t *testing.T) {
	f := newFixture(t, catalog.Default())
	reg := f.register(t, 7)

	c := newContext(7, labelKupi)
	require.NoError(t, f.h.onText(c))

	msg := c.last(t).text()
	require.Contains(t, msg, "Вы уже зарегистрированы")
	require.Contains(t, msg, "`"+reg.VoucherCode+"`")
	require.Equal(t, state.StateIdle, f.sessions.GetState(7))
}

func TestFullSlotReoffersRemainingSlots(t *testing.T) {
	f := newFixture(t, catalog.Default())
	for id := int64(1); id <= 4; id++ {
		f.register(t, id)
	}

	require.NoError(t, f.h.onStart(newContext(5, "/start")))
	require.NoError(t, f.h.onText(newContext(5, labelKupi)))
	c := newContext(5, "")
	c.cb = slotCallback(0, "08.10.2025", "11:20-12:00")
	require.NoError(t, f.h.onSlot(c))

	msg := c.last(t)
	require.Equal(t, textSlotFull, msg.text())
	require.Equal(t, workflow.StateChoosingSlot, f.sessions.GetState(5))
	for _, row := range msg.markup().InlineKeyboard {
		for _, btn := range row {
			require.NotEqual(t, "08.10.2025 11:20-12:00", btn.Text)
		}
	}
}

func TestStaleSlotButton(t *testing.T) {
	f := newFixture(t, catalog.Default())
	c := newContext(3, "")
	c.cb = slotCallback(0, "08.10.2025", "11:20-12:00")

	require.NoError(t, f.h.onSlot(c))
	require.Equal(t, textStaleButton, c.last(t).text())

	for _, data := range []string{"broken", "08.10.2025|11:20-12:00", "7|08.10.2025|11:20-12:00"} {
		c = newContext(3, "")
		c.cb = &tele.Callback{Data: "\f" + cbSlot + "|" + data}
		require.NoError(t, f.h.onSlot(c))
		require.Equal(t, textStaleButton, c.last(t).text(), data)
	}
}

func TestSlotButtonFromEarlierGameOfferIsStale(t *testing.T) {
	f := newFixture(t, catalog.Default())
	require.NoError(t, f.h.onStart(newContext(8, "/start")))
	require.NoError(t, f.h.onText(newContext(8, labelKupi)))

	second := newContext(8, labelMir)
	require.NoError(t, f.h.onText(second))
	require.Equal(t, "1|08.10.2025|11:20-12:00", second.last(t).markup().InlineKeyboard[0][0].Data)

	c := newContext(8, "")
	c.cb = slotCallback(0, "08.10.2025", "11:20-12:00")
	require.NoError(t, f.h.onSlot(c))
	require.Equal(t, textStaleButton, c.last(t).text())
	regs, err := f.store.ListByParticipant(context.Background(), 8)
	require.NoError(t, err)
	require.Empty(t, regs)

	c = newContext(8, "")
	c.cb = slotCallback(1, "08.10.2025", "11:20-12:00")
	require.NoError(t, f.h.onSlot(c))
	regs, err = f.store.ListByParticipant(context.Background(), 8)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, "Мир проектов", regs[0].Game)
}

func TestUnknownTextAsksForGame(t *testing.T) {
	f := newFixture(t, catalog.Default())

	c := newContext(2, "привет")
	require.NoError(t, f.h.onText(c))
	require.Equal(t, textPickGame, c.last(t).text())

	require.NoError(t, f.h.onStart(newContext(2, "/start")))
	require.NoError(t, f.h.onText(newContext(2, labelKupi)))
	c = newContext(2, "когда?")
	require.NoError(t, f.h.onText(c))
	require.Equal(t, textPickSlot, c.last(t).text())
	require.Equal(t, workflow.StateChoosingSlot, f.sessions.GetState(2))
}

func TestMediaRepeatsCurrentQuestion(t *testing.T) {
	f := newFixture(t, catalog.Default())

	c := newContext(3, "")
	require.NoError(t, f.h.OnMedia(c))
	require.Equal(t, textPickGame, c.last(t).text())
	require.NotNil(t, c.last(t).markup())

	require.NoError(t, f.h.onStart(newContext(3, "/start")))
	require.NoError(t, f.h.onText(newContext(3, labelKupi)))
	c = newContext(3, "")
	require.NoError(t, f.h.OnMedia(c))
	require.Equal(t, textPickSlot, c.last(t).text())
	require.Equal(t, workflow.StateChoosingSlot, f.sessions.GetState(3))
}

func TestSimpleCatalogRegistersOnGameChoice(t *testing.T) {
	cfg := catalog.Default()
	cfg.Days = nil
	f := newFixture(t, cfg)

	c := newContext(4, labelKupi)
	require.NoError(t, f.h.onText(c))
	require.Contains(t, c.last(t).text(), "Регистрация завершена")
}

func TestCancelResetsDialog(t *testing.T) {
	f := newFixture(t, catalog.Default())
	require.NoError(t, f.h.onStart(newContext(1, "/start")))
	require.NoError(t, f.h.onText(newContext(1, labelKupi)))

	c := newContext(1, "/cancel")
	require.NoError(t, f.h.onCancel(c))
	require.Equal(t, textCancelled, c.last(t).text())
	require.Equal(t, state.StateIdle, f.sessions.GetState(1))
}

func TestMyListsOwnRegistrations(t *testing.T) {
	f := newFixture(t, catalog.Default())

	c := newContext(7, "/my")
	require.NoError(t, f.h.onMy(c))
	require.Equal(t, textNoOwn, c.last(t).text())

	reg := f.register(t, 7)
	c = newContext(7, "/my")
	require.NoError(t, f.h.onMy(c))
	require.Contains(t, c.last(t).text(), "`"+reg.VoucherCode+"`")
	require.Contains(t, c.last(t).text(), "✅ Активен")
}

func TestRedeem(t *testing.T) {
	f := newFixture(t, catalog.Default())
	reg := f.register(t, 7)

	c := newContext(moderatorID, "/use")
	require.NoError(t, f.h.onRedeem(c))
	require.Equal(t, textRedeemUsage, c.last(t).text())

	c = newContext(moderatorID, "/use FG-ZZZZZZ")
	c.args = []string{"FG-ZZZZZZ"}
	require.NoError(t, f.h.onRedeem(c))
	require.Equal(t, notFoundText("FG-ZZZZZZ"), c.last(t).text())

	c = newContext(moderatorID, "/use "+strings.ToLower(reg.VoucherCode))
	c.args = []string{strings.ToLower(reg.VoucherCode)}
	require.NoError(t, f.h.onRedeem(c))
	require.Equal(t, redeemedText(reg.VoucherCode, labelKupi), c.last(t).text())

	require.NoError(t, f.h.onRedeem(c))
	require.Equal(t, alreadyUsedText(reg.VoucherCode), c.last(t).text())

	c = newContext(moderatorID, "/list")
	require.NoError(t, f.h.onList(c))
	require.Contains(t, c.last(t).text(), reg.VoucherCode+" → Купимания")
	require.Contains(t, c.last(t).text(), "❌ Использован")

	c = newContext(moderatorID, "/active")
	require.NoError(t, f.h.onActive(c))
	require.NotContains(t, c.last(t).text(), reg.VoucherCode)
}

func TestExportSendsDocumentAndRemovesFile(t *testing.T) {
	f := newFixture(t, catalog.Default())

	c := newContext(moderatorID, "/export")
	require.NoError(t, f.h.onExport(c))
	require.Equal(t, textEmpty, c.last(t).text())

	f.register(t, 7)
	c = newContext(moderatorID, "/export")
	require.NoError(t, f.h.onExport(c))

	doc, ok := c.last(t).what.(*tele.Document)
	require.True(t, ok)
	require.True(t, strings.HasSuffix(doc.FileName, ".csv"))
	require.Equal(t, exportCaption(1), doc.Caption)

	_, err := os.Stat(doc.File.FileLocal)
	require.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Dir(doc.File.FileLocal))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestStats(t *testing.T) {
	f := newFixture(t, catalog.Default())
	f.register(t, 7)

	c := newContext(moderatorID, "/stats")
	require.NoError(t, f.h.onStats(c))
	require.Contains(t, c.last(t).text(), "08.10.2025 11:20-12:00: 1/4")
}

func TestHelpShowsModeratorSection(t *testing.T) {
	f := newFixture(t, catalog.Default())

	c := newContext(1, "/help")
	require.NoError(t, f.h.onHelp(c))
	require.Equal(t, textHelp, c.last(t).text())

	c = newContext(moderatorID, "/help")
	require.NoError(t, f.h.onHelp(c))
	require.Equal(t, textHelp+textModeratorHelp, c.last(t).text())
}

func TestNotifierIsolatesRecipients(t *testing.T) {
	cat := catalog.MustDefault()
	n := NewNotifier(moderation.NewModerators(1, 2, 3), cat)
	reg := registration.Registration{Game: "Купимания", VoucherCode: "FG-AB12CD"}

	n.Registered(context.Background(), reg)

	s := &fakeSender{failTo: 2}
	n.Attach(s, nil)
	n.Registered(context.Background(), reg)

	require.Len(t, s.got[1], 1)
	require.Len(t, s.got[3], 1)
	require.Empty(t, s.got[2])
	require.Equal(t, "✅ Новый ID\nИгра: 🎲 Купимания\nID: FG-AB12CD", s.got[1][0])
}

type recordingQueue struct {
	recipients []int64
}

func (q *recordingQueue) EnqueueTo(_ context.Context, _ string, recipient int64, run func() error) error {
	q.recipients = append(q.recipients, recipient)
	return run()
}

func TestNotifierUsesQueue(t *testing.T) {
	n := NewNotifier(moderation.NewModerators(5, 4), nil)
	q := &recordingQueue{}
	s := &fakeSender{}
	n.Attach(s, q)

	n.Registered(context.Background(), registration.Registration{Game: "Мир проектов", VoucherCode: "FG-000000"})
	require.Equal(t, []int64{4, 5}, q.recipients)
	require.Len(t, s.got[4], 1)
}

func TestRegisterWiresRegistry(t *testing.T) {
	f := newFixture(t, catalog.Default())
	reg := tg.NewRegistry()

	require.NoError(t, f.h.Register(reg, f.sessions))

	key, cmd, ok := reg.LookupCommand("/use FG-AB12CD")
	require.True(t, ok)
	require.Equal(t, "/redeem", key)
	require.True(t, cmd.AdminOnly)

	menu := func(moderator bool) []string {
		var names []string
		for _, c := range reg.Menu(moderator) {
			names = append(names, c.Text)
		}
		return names
	}
	require.Equal(t, []string{"/cancel", "/help", "/my", "/start"}, menu(false))
	require.Equal(t, []string{"/active", "/cancel", "/export", "/help", "/list", "/my", "/redeem", "/start", "/stats"}, menu(true))
	require.Equal(t, []string{cbCancel, cbSlot}, reg.ListCallbacks())
	require.NotNil(t, reg.TextFallback())

	require.Error(t, f.h.Register(reg, f.sessions))
}
