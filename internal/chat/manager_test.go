package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	gosync "sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spaceseries/spacechat/internal/channel"
	"github.com/spaceseries/spacechat/internal/component"
	"github.com/spaceseries/spacechat/internal/config"
	"github.com/spaceseries/spacechat/internal/messages"
	"github.com/spaceseries/spacechat/internal/player"
	"github.com/spaceseries/spacechat/internal/store/sqlite"
	"github.com/spaceseries/spacechat/internal/sync"
	"github.com/spaceseries/spacechat/internal/sync/packet"
	"github.com/spaceseries/spacechat/internal/user"
)

type recorder struct {
	mu    gosync.Mutex
	lines []string
}

func (r *recorder) Deliver(_ uuid.UUID, c component.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, c.PlainText())
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return ""
	}
	return r.lines[len(r.lines)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

type testEnv struct {
	chat   *Manager
	users  *user.Manager
	roster *player.Roster
	data   sync.DataService
	stream sync.StreamService
	store  *sqlite.SQLiteStore

	mu    gosync.Mutex
	perms map[uuid.UUID]map[string]bool
}

func (e *testEnv) grant(id uuid.UUID, node string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.perms[id] == nil {
		e.perms[id] = make(map[string]bool)
	}
	e.perms[id][node] = true
}

func (e *testEnv) revoke(id uuid.UUID, node string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.perms[id], node)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.Identifier = "hub"
	cfg.Server.DisplayName = "Hub"
	cfg.Channels = map[string]config.ChannelConfig{
		"staff": {Permission: "spacechat.channel.staff"},
		"open":  {Format: "[open] %player%: %message%"},
	}

	st, err := sqlite.New(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	env := &testEnv{store: st, perms: make(map[uuid.UUID]map[string]bool)}
	perm := func(p *player.Player, node string) bool {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.perms[p.ID][node]
	}

	env.roster = player.NewRoster()
	env.users = user.NewManager(st, &logger)
	env.chat = NewManager(&cfg, env.roster, channel.NewRegistry(cfg.Channels), env.users, messages.Load(nil), st, perm, &logger)

	env.data = sync.NewMemoryDataService("hub", env.roster)
	env.stream = sync.NewMemoryStreamService("hub", env.chat, logger)
	env.chat.BindSync(env.data, env.stream)
	env.users.BindData(env.data)
	return env
}

// failingData wraps a data service and injects transport errors, standing in
// for an unreachable network backend mid-session.
type failingData struct {
	sync.DataService
	currentErr error
	serverErr  error
}

func (d *failingData) CurrentChannel(ctx context.Context, id uuid.UUID) (string, error) {
	if d.currentErr != nil {
		return "", d.currentErr
	}
	return d.DataService.CurrentChannel(ctx, id)
}

func (d *failingData) PlayerServer(ctx context.Context, username string) (string, error) {
	if d.serverErr != nil {
		return "", d.serverErr
	}
	return d.DataService.PlayerServer(ctx, username)
}

func (e *testEnv) join(t *testing.T, name string) (*player.Player, *recorder) {
	t.Helper()
	rec := &recorder{}
	p := player.New(uuid.New(), name, rec)
	if err := e.chat.OnJoin(context.Background(), p); err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return p, rec
}

func TestGlobalChatReachesEveryone(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.chat.SendChatMessage(context.Background(), alice, "hello")

	if aliceRec.last() != "alice> hello" {
		t.Fatalf("sender missed own message: %q", aliceRec.last())
	}
	if bobRec.last() != "alice> hello" {
		t.Fatalf("recipient missed message: %q", bobRec.last())
	}
}

func TestGlobalChatHonorsIgnore(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.users.Get(bob.ID).Ignore(alice.ID, alice.Name)
	env.chat.SendChatMessage(context.Background(), alice, "hello")
	if bobRec.count() != 0 {
		t.Fatal("message reached an ignoring player")
	}

	env.grant(alice.ID, env.chat.cfg.Permissions.BypassIgnore)
	env.chat.SendChatMessage(context.Background(), alice, "hello again")
	if bobRec.last() != "alice> hello again" {
		t.Fatalf("bypass ignore not honored: %q", bobRec.last())
	}
}

func TestGlobalChatHonorsDisabled(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.users.Get(bob.ID).SetChatEnabled(user.ChatTypePublic, false)
	env.chat.SendChatMessage(context.Background(), alice, "hello")
	if bobRec.count() != 0 {
		t.Fatal("message reached a player with chat disabled")
	}

	env.grant(alice.ID, env.chat.cfg.Permissions.BypassDisabledPublic)
	env.chat.SendChatMessage(context.Background(), alice, "urgent")
	if bobRec.last() != "alice> urgent" {
		t.Fatalf("bypass disabled not honored: %q", bobRec.last())
	}
}

func TestSenderWithChatDisabledIsBlocked(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.users.Get(alice.ID).SetChatEnabled(user.ChatTypePublic, false)
	env.chat.SendChatMessage(context.Background(), alice, "hello")

	if bobRec.count() != 0 {
		t.Fatal("blocked message was delivered")
	}
	if !strings.Contains(aliceRec.last(), "disabled") {
		t.Fatalf("sender not told chat is disabled: %q", aliceRec.last())
	}
}

func TestChannelChatReachesSubscribersOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, aliceRec := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")
	_, carolRec := env.join(t, "carol")

	env.grant(alice.ID, "spacechat.channel.staff")
	env.grant(bob.ID, "spacechat.channel.staff")

	env.chat.JoinChannel(ctx, alice, "staff")
	env.chat.ListenChannel(ctx, bob, "staff")

	env.chat.SendChatMessage(ctx, alice, "shift change")

	if aliceRec.last() != "alice> shift change" {
		t.Fatalf("sender missed own channel message: %q", aliceRec.last())
	}
	if bobRec.last() != "alice> shift change" {
		t.Fatalf("listener missed channel message: %q", bobRec.last())
	}
	for _, line := range carolRec.lines {
		if strings.Contains(line, "shift change") {
			t.Fatal("non-subscriber received channel message")
		}
	}
}

func TestChannelFormatApplied(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, aliceRec := env.join(t, "alice")

	env.chat.JoinChannel(ctx, alice, "open")
	env.chat.SendChatMessage(ctx, alice, "trades?")

	if aliceRec.last() != "[open] alice: trades?" {
		t.Fatalf("channel format not applied: %q", aliceRec.last())
	}
}

func TestChannelPermissionLossRepairsState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.grant(alice.ID, "spacechat.channel.staff")
	env.grant(bob.ID, "spacechat.channel.staff")
	env.chat.JoinChannel(ctx, alice, "staff")
	env.chat.ListenChannel(ctx, bob, "staff")

	env.revoke(bob.ID, "spacechat.channel.staff")
	env.chat.SendChatMessage(ctx, alice, "secret")

	for _, line := range bobRec.lines {
		if strings.Contains(line, "secret") {
			t.Fatal("revoked subscriber received channel message")
		}
	}
	subs, err := env.data.Subscribers(ctx, "staff")
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	for _, id := range subs {
		if id == bob.ID {
			t.Fatal("revoked subscriber not unsubscribed")
		}
	}
}

func TestSenderPermissionLossFallsBackToGlobal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.grant(alice.ID, "spacechat.channel.staff")
	env.chat.JoinChannel(ctx, alice, "staff")
	env.revoke(alice.ID, "spacechat.channel.staff")

	env.chat.SendChatMessage(ctx, alice, "hello")

	// Bob never subscribed to staff, so delivery proves the message
	// was routed globally.
	if bobRec.last() != "alice> hello" {
		t.Fatalf("message not rerouted to global: %q", bobRec.last())
	}
	current, err := env.data.CurrentChannel(ctx, alice.ID)
	if err != nil || current != "" {
		t.Fatalf("stale current channel not cleared: %q err %v", current, err)
	}
}

func TestJoinChannelRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")

	env.chat.JoinChannel(context.Background(), alice, "staff")
	if !strings.Contains(aliceRec.last(), "access") {
		t.Fatalf("expected access denied, got %q", aliceRec.last())
	}

	env.chat.JoinChannel(context.Background(), alice, "nosuch")
	if !strings.Contains(aliceRec.last(), "does not exist") {
		t.Fatalf("expected invalid channel, got %q", aliceRec.last())
	}
}

func TestMuteChannelClearsCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.join(t, "alice")

	env.chat.JoinChannel(ctx, alice, "open")
	env.chat.MuteChannel(ctx, alice, "open")

	current, err := env.data.CurrentChannel(ctx, alice.ID)
	if err != nil || current != "" {
		t.Fatalf("mute left current channel set: %q err %v", current, err)
	}
	subs, _ := env.data.Subscribers(ctx, "open")
	if len(subs) != 0 {
		t.Fatal("mute left subscription behind")
	}
}

func TestPrivateMessageLocalDelivery(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.chat.SendPrivateMessage(context.Background(), alice, "bob", "psst")

	if bobRec.last() != "[alice -> bob] psst" {
		t.Fatalf("target missed private message: %q", bobRec.last())
	}
	if aliceRec.last() != "[alice -> bob] psst" {
		t.Fatalf("sender missed own copy: %q", aliceRec.last())
	}
	if env.users.Get(alice.ID).LastMessaged() != "bob" {
		t.Fatal("sender last-messaged not recorded")
	}
	if env.users.Get(bob.ID).LastMessaged() != "alice" {
		t.Fatal("target last-messaged not recorded")
	}
}

func TestPrivateMessageRefusedWhenIgnored(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.users.Get(bob.ID).Ignore(alice.ID, alice.Name)
	env.chat.SendPrivateMessage(context.Background(), alice, "bob", "psst")

	if bobRec.count() != 0 {
		t.Fatal("private message reached an ignoring target")
	}
	if !strings.Contains(aliceRec.last(), "ignored") {
		t.Fatalf("sender not told about ignore: %q", aliceRec.last())
	}
}

func TestPrivateMessageRefusedWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")
	bob, bobRec := env.join(t, "bob")

	env.users.Get(bob.ID).SetChatEnabled(user.ChatTypePrivate, false)
	env.chat.SendPrivateMessage(context.Background(), alice, "bob", "psst")

	if bobRec.count() != 0 {
		t.Fatal("private message reached a target with PMs disabled")
	}
	if !strings.Contains(aliceRec.last(), "disabled") {
		t.Fatalf("sender not told about disabled PMs: %q", aliceRec.last())
	}

	env.grant(alice.ID, env.chat.cfg.Permissions.BypassDisabledPrivate)
	env.chat.SendPrivateMessage(context.Background(), alice, "bob", "urgent")
	if bobRec.last() != "[alice -> bob] urgent" {
		t.Fatalf("bypass disabled not honored: %q", bobRec.last())
	}
}

func TestPrivateMessageOfflineTarget(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")

	env.chat.SendPrivateMessage(context.Background(), alice, "nobody", "psst")
	if !strings.Contains(aliceRec.last(), "not online") {
		t.Fatalf("expected offline notice, got %q", aliceRec.last())
	}
}

func TestBroadcastWrapsMessage(t *testing.T) {
	env := newTestEnv(t)
	_, aliceRec := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.chat.Broadcast(context.Background(), "restart in 5")

	want := "[Broadcast] restart in 5"
	if aliceRec.last() != want || bobRec.last() != want {
		t.Fatalf("broadcast delivery wrong: %q / %q", aliceRec.last(), bobRec.last())
	}
}

func TestHandleRemoteChatGlobal(t *testing.T) {
	env := newTestEnv(t)
	_, aliceRec := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.chat.HandleRemoteChat(&packet.Chat{
		SenderID:          uuid.New(),
		SenderName:        "eve",
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("eve> hi"),
	})

	if aliceRec.last() != "eve> hi" || bobRec.last() != "eve> hi" {
		t.Fatalf("remote chat not delivered: %q / %q", aliceRec.last(), bobRec.last())
	}
}

func TestHandleRemoteChatRespectsIgnore(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")

	remote := uuid.New()
	env.users.Get(alice.ID).Ignore(remote, "eve")

	env.chat.HandleRemoteChat(&packet.Chat{
		SenderID:          remote,
		SenderName:        "eve",
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("eve> hi"),
	})
	if aliceRec.count() != 0 {
		t.Fatal("remote chat reached an ignoring player")
	}

	env.chat.HandleRemoteChat(&packet.Chat{
		SenderID:          remote,
		SenderName:        "eve",
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("eve> hi"),
		CanBypassIgnore:   true,
	})
	if aliceRec.last() != "eve> hi" {
		t.Fatalf("publish-time bypass flag not trusted: %q", aliceRec.last())
	}
}

func TestHandleRemotePrivateChatDelivers(t *testing.T) {
	env := newTestEnv(t)
	bob, bobRec := env.join(t, "bob")

	env.chat.HandleRemotePrivateChat(&packet.PrivateChat{
		SenderID:          uuid.New(),
		SenderName:        "eve",
		TargetName:        "bob",
		Message:           "hi",
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("[eve -> bob] hi"),
	})

	if bobRec.last() != "[eve -> bob] hi" {
		t.Fatalf("remote private message not delivered: %q", bobRec.last())
	}
	if env.users.Get(bob.ID).LastMessaged() != "eve" {
		t.Fatal("target last-messaged not recorded")
	}
}

func TestHandleRemotePrivateChatBounceReachesSender(t *testing.T) {
	env := newTestEnv(t)
	_, aliceRec := env.join(t, "alice")

	env.chat.HandleRemotePrivateChat(&packet.PrivateChat{
		SenderID:          uuid.Nil,
		TargetName:        "alice",
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("bob has you ignored."),
	})

	if aliceRec.last() != "bob has you ignored." {
		t.Fatalf("bounce not delivered to original sender: %q", aliceRec.last())
	}
}

func TestHandleRemoteBroadcast(t *testing.T) {
	env := newTestEnv(t)
	_, aliceRec := env.join(t, "alice")

	env.chat.HandleRemoteBroadcast(&packet.Broadcast{
		ServerIdentifier:  "lobby",
		ServerDisplayName: "Lobby",
		Component:         component.Text("[Broadcast] hello"),
	})

	if aliceRec.last() != "[Broadcast] hello" {
		t.Fatalf("remote broadcast not delivered: %q", aliceRec.last())
	}
}

func TestUnreachableBackendStillDeliversLocally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.join(t, "alice")
	_, bobRec := env.join(t, "bob")

	env.chat.JoinChannel(ctx, alice, "open")
	env.chat.BindSync(&failingData{
		DataService: env.data,
		currentErr:  errors.New("connection refused"),
	}, env.stream)

	env.chat.SendChatMessage(ctx, alice, "hello")

	if bobRec.last() != "alice> hello" {
		t.Fatalf("degraded backend broke local delivery: %q", bobRec.last())
	}
}

func TestUnreachableBackendDoesNotClaimOffline(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceRec := env.join(t, "alice")

	env.chat.BindSync(&failingData{
		DataService: env.data,
		serverErr:   errors.New("connection refused"),
	}, env.stream)

	env.chat.SendPrivateMessage(context.Background(), alice, "ghost", "psst")

	if strings.Contains(aliceRec.last(), "not online") {
		t.Fatalf("transport fault reported as offline: %q", aliceRec.last())
	}
	if aliceRec.last() != "[alice -> ghost] psst" {
		t.Fatalf("message not relayed despite unknown location: %q", aliceRec.last())
	}
}

func TestRemoteDeliveryDoesNotRaceLocalMessaging(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.join(t, "alice")
	bob, _ := env.join(t, "bob")
	remote := uuid.New()

	// Remote handlers run on the messenger's listener goroutine while the
	// game thread mutates the same profiles.
	var wg gosync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			env.chat.HandleRemotePrivateChat(&packet.PrivateChat{
				SenderID:          remote,
				SenderName:        "eve",
				TargetName:        "bob",
				Message:           "hi",
				ServerIdentifier:  "lobby",
				ServerDisplayName: "Lobby",
				Component:         component.Text("[eve -> bob] hi"),
			})
			env.chat.HandleRemoteChat(&packet.Chat{
				SenderID:          remote,
				SenderName:        "eve",
				ServerIdentifier:  "lobby",
				ServerDisplayName: "Lobby",
				Component:         component.Text("eve> hi"),
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			env.chat.SendPrivateMessage(context.Background(), bob, "alice", "psst")
		}
	}()
	go func() {
		defer wg.Done()
		u := env.users.Get(alice.ID)
		for i := 0; i < 200; i++ {
			u.Ignore(remote, "eve")
			u.Unignore(remote)
			u.SetChatEnabled(user.ChatTypePublic, i%2 == 0)
			u.Subscribe("open")
			u.Unsubscribe("open")
		}
	}()
	wg.Wait()

	got := env.users.Get(bob.ID).LastMessaged()
	if got != "eve" && got != "alice" {
		t.Fatalf("unexpected last-messaged: %q", got)
	}
}

func TestOnJoinRollsBackRosterOnLoadFailure(t *testing.T) {
	env := newTestEnv(t)
	if err := env.store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	p := player.New(uuid.New(), "alice", &recorder{})
	if err := env.chat.OnJoin(context.Background(), p); err == nil {
		t.Fatal("expected join to fail with the store closed")
	}
	if env.roster.Get(p.ID) != nil {
		t.Fatal("roster entry left behind after failed join")
	}
	if env.users.Get(p.ID) != nil {
		t.Fatal("profile cached after failed join")
	}
}

func TestOnQuitReleasesState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.join(t, "alice")

	if _, err := env.data.PlayerServer(ctx, "alice"); err != nil {
		t.Fatalf("presence missing after join: %v", err)
	}

	if err := env.chat.OnQuit(ctx, alice.ID); err != nil {
		t.Fatalf("quit: %v", err)
	}

	if env.roster.Get(alice.ID) != nil {
		t.Fatal("player still on roster")
	}
	if env.users.Get(alice.ID) != nil {
		t.Fatal("profile still cached")
	}
	if _, err := env.data.PlayerServer(ctx, "alice"); err == nil {
		t.Fatal("presence record survived quit")
	}
}
