package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"pearlbot/pkg/allowlist"
	"pearlbot/pkg/authlink"
	"pearlbot/pkg/bus"
	"pearlbot/pkg/command"
	"pearlbot/pkg/lookup"
	"pearlbot/pkg/world"
)

var (
	alice = world.Player{UUID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Name: "Alice", Latency: 42}
	bob   = world.Player{UUID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Name: "Bob", Latency: 180}
	carol = world.Player{UUID: uuid.MustParse("33333333-3333-3333-3333-333333333333"), Name: "Carol", Latency: 512}

	fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
)

type fakeLookup struct {
	playtime lookup.Playtime
	seen     lookup.Seen
	err      error
	names    []string
}

func (f *fakeLookup) Playtime(_ context.Context, name string) (lookup.Playtime, error) {
	f.names = append(f.names, name)
	return f.playtime, f.err
}

func (f *fakeLookup) Seen(_ context.Context, name string) (lookup.Seen, error) {
	f.names = append(f.names, name)
	return f.seen, f.err
}

type fakeLinker struct {
	player uuid.UUID
	err    error
}

func (f fakeLinker) Exchange(context.Context, string) (uuid.UUID, error) {
	return f.player, f.err
}

type fakeNavigator struct {
	at      world.Position
	err     error
	visited []world.Position
}

func (n *fakeNavigator) Position() world.Position {
	return n.at
}

func (n *fakeNavigator) ActivateAt(_ context.Context, pos world.Position) error {
	n.visited = append(n.visited, pos)
	return n.err
}

type staticStasis []world.Pearl

func (s staticStasis) Pearls() []world.Pearl {
	return s
}

type fixture struct {
	set   *Set
	allow *allowlist.List
	store *allowlist.MemoryStore
	stats *fakeLookup
	nav   *fakeNavigator
}

func newFixture(t *testing.T, mutate func(*Env)) fixture {
	t.Helper()

	store := allowlist.NewMemoryStore(allowlist.Entry{Player: alice.UUID, Linked: "100"})
	list, err := allowlist.Open(context.Background(), store)
	require.NoError(t, err)

	stats := &fakeLookup{}
	nav := &fakeNavigator{}
	env := Env{
		Registry:  command.NewRegistry("!"),
		Allow:     list,
		Roster:    world.StaticRoster{alice, bob, carol},
		Stasis:    staticStasis{},
		Navigator: nav,
		Lookup:    stats,
		Now:       func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&env)
	}

	return fixture{set: New(env), allow: list, store: store, stats: stats, nav: nav}
}

func gameRequest(p world.Player, id command.ID, args ...string) bus.CommandRequest {
	return bus.CommandRequest{
		Sender:  bus.GameChatSender(p.UUID.String(), p.Name),
		Origin:  bus.GameChatOrigin(nil),
		Command: id,
		Args:    args,
	}
}

func groupRequest(account string, id command.ID, args ...string) bus.CommandRequest {
	return bus.CommandRequest{
		Sender:  bus.GroupChatSender(account, "user"),
		Origin:  bus.GroupChatOrigin("-1"),
		Command: id,
		Args:    args,
	}
}

func immediate(t *testing.T, result Result) bus.ReplyEvent {
	t.Helper()
	require.NotNil(t, result.Reply)
	require.Nil(t, result.Later)
	return *result.Reply
}

func deferred(t *testing.T, result Result) bus.ReplyEvent {
	t.Helper()
	require.Nil(t, result.Reply)
	require.NotNil(t, result.Later)
	return result.Later(context.Background())
}

func TestHelp(t *testing.T) {
	f := newFixture(t, nil)

	reply := immediate(t, f.set.Help(gameRequest(alice, command.Help)))
	require.Equal(t, http.StatusOK, reply.Status)
	require.True(t, strings.HasPrefix(reply.Content, "Commands: !help [command], !ping [player]"))

	reply = immediate(t, f.set.Help(gameRequest(alice, command.Help, "pt")))
	require.Equal(t, "!playtime <player> (aliases: pt)", reply.Content)

	reply = immediate(t, f.set.Help(gameRequest(alice, command.Help, "!tp")))
	require.Equal(t, "!pearl (aliases: tp, teleport)", reply.Content)

	reply = immediate(t, f.set.Help(gameRequest(alice, command.Help, "fly")))
	require.Equal(t, http.StatusNotFound, reply.Status)
	require.Equal(t, "[404] Command not found", reply.Content)
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)

	reply := immediate(t, f.set.Ping(gameRequest(alice, command.Ping, "Bob")))
	require.Equal(t, "Bob's ping latency is 180ms, fair", reply.Content)
	require.Equal(t, http.StatusOK, reply.Status)

	reply = immediate(t, f.set.Ping(gameRequest(alice, command.Ping)))
	require.Equal(t, "Alice's ping latency is 42ms, excellent", reply.Content)

	reply = immediate(t, f.set.Ping(gameRequest(alice, command.Ping, "Nobody")))
	require.Equal(t, "[404] Player not found", reply.Content)

	reply = immediate(t, f.set.Ping(groupRequest("999", command.Ping)))
	require.Equal(t, http.StatusBadRequest, reply.Status)
	require.Equal(t, "[400] Usage: !ping [player]", reply.Content)

	// Linked group-chat accounts ping as their player.
	reply = immediate(t, f.set.Ping(groupRequest("100", command.Ping)))
	require.Equal(t, "Alice's ping latency is 42ms, excellent", reply.Content)
}

func TestLatencyQuality(t *testing.T) {
	require.Equal(t, "unknown", latencyQuality(0))
	require.Equal(t, "good", latencyQuality(120))
	require.Equal(t, "poor", latencyQuality(carol.Latency))
}

func TestPearl(t *testing.T) {
	shared := world.Position{X: 5}
	own := world.Position{X: 100}
	f := newFixture(t, func(env *Env) {
		env.Stasis = staticStasis{
			{Owner: alice.UUID, Position: shared},
			{Owner: bob.UUID, Position: shared},
			{Owner: alice.UUID, Position: own},
		}
	})

	result := f.set.Pearl(gameRequest(alice, command.Pearl))
	require.NotNil(t, result.Reply)
	require.Equal(t, http.StatusAccepted, result.Reply.Status)
	require.Equal(t, "[202] On my way", result.Reply.Content)
	require.NotNil(t, result.Later)

	final := result.Later(context.Background())
	require.Equal(t, http.StatusOK, final.Status)
	require.Equal(t, "OK", final.Content)
	require.Equal(t, []world.Position{own}, f.nav.visited)

	f.nav.err = errors.New("stuck")
	final = f.set.Pearl(gameRequest(alice, command.Pearl)).Later(context.Background())
	require.Equal(t, "[500] Failed to reach pearl", final.Content)
}

func TestPearlNotFound(t *testing.T) {
	f := newFixture(t, nil)

	reply := immediate(t, f.set.Pearl(gameRequest(bob, command.Pearl)))
	require.Equal(t, "[404] Pearl not found", reply.Content)

	reply = immediate(t, f.set.Pearl(groupRequest("555", command.Pearl)))
	require.Equal(t, http.StatusForbidden, reply.Status)
}

func TestPearlWithoutGameLink(t *testing.T) {
	f := newFixture(t, func(env *Env) { env.Stasis, env.Navigator = nil, nil })

	reply := immediate(t, f.set.Pearl(gameRequest(alice, command.Pearl)))
	require.Equal(t, http.StatusServiceUnavailable, reply.Status)
}

func TestPlaytime(t *testing.T) {
	f := newFixture(t, nil)
	f.stats.playtime = lookup.Playtime{Seconds: 93784}

	reply := deferred(t, f.set.Playtime(gameRequest(alice, command.Playtime, "Notch")))
	require.Equal(t, "Notch has played for 1d 2h 3m", reply.Content)
	require.Equal(t, []string{"Notch"}, f.stats.names)

	reply = immediate(t, f.set.Playtime(gameRequest(alice, command.Playtime)))
	require.Equal(t, "[400] Usage: !playtime <player>", reply.Content)
}

func TestLookupFailures(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		content string
	}{
		{err: lookup.ErrNotFound, status: http.StatusNotFound, content: "[404] Player not found"},
		{err: lookup.ErrUnavailable, status: http.StatusBadGateway, content: "[502] Lookup failed"},
		{err: context.DeadlineExceeded, status: http.StatusBadGateway, content: "[502] Lookup failed"},
		{err: lookup.ErrMalformed, status: http.StatusInternalServerError, content: "[500] Unreadable lookup response"},
	}

	for _, tc := range cases {
		f := newFixture(t, nil)
		f.stats.err = tc.err

		reply := deferred(t, f.set.Seen(gameRequest(alice, command.Seen, "Notch")))
		require.Equal(t, tc.status, reply.Status, tc.err.Error())
		require.Equal(t, tc.content, reply.Content)
	}
}

func TestSeen(t *testing.T) {
	f := newFixture(t, nil)
	f.stats.seen = lookup.Seen{
		FirstSeen: time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC),
		LastSeen:  fixedNow.Add(-(3*24*time.Hour + 4*time.Hour)),
	}

	reply := deferred(t, f.set.Seen(gameRequest(alice, command.Seen, "Notch")))
	require.Equal(t, "Notch was last seen 2026-10-15 08:00 UTC (3d 4h 0m ago), first seen 2020-01-02 03:04 UTC", reply.Content)
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0m", formatDuration(-time.Minute))
	require.Equal(t, "59m", formatDuration(59*time.Minute+59*time.Second))
	require.Equal(t, "2h 0m", formatDuration(2*time.Hour))
	require.Equal(t, "1d 0h 5m", formatDuration(24*time.Hour+5*time.Minute))
}

func TestWhitelistAddRemove(t *testing.T) {
	f := newFixture(t, nil)

	reply := immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "add", "Bob")))
	require.Equal(t, "Added Bob to the whitelist", reply.Content)
	require.True(t, f.allow.Contains(bob.UUID))

	reply = immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "add", "bob")))
	require.Equal(t, "[409] Bob is already whitelisted", reply.Content)

	reply = immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "add", "Nobody")))
	require.Equal(t, "[404] Player not found", reply.Content)

	offline := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	reply = immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "add", offline.String())))
	require.Equal(t, http.StatusOK, reply.Status)
	require.True(t, f.allow.Contains(offline))

	reply = immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "remove", "Bob")))
	require.Equal(t, "Removed Bob from the whitelist", reply.Content)

	reply = immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "remove", "Carol")))
	require.Equal(t, "[404] Carol is not whitelisted", reply.Content)

	reply = immediate(t, f.set.Whitelist(gameRequest(carol, command.Whitelist, "add", "Carol")))
	require.Equal(t, "[403] Not whitelisted", reply.Content)
	require.False(t, f.allow.Contains(carol.UUID))
}

func TestWhitelistUsage(t *testing.T) {
	f := newFixture(t, nil)

	for _, args := range [][]string{nil, {"add"}, {"promote", "Bob"}} {
		reply := immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, args...)))
		require.Equal(t, http.StatusBadRequest, reply.Status)
	}
}

func TestWhitelistSaveFailureRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailSaves(errors.New("disk full"))

	reply := immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "add", "Bob")))
	require.Equal(t, "[500] Failed to save whitelist", reply.Content)
	require.False(t, f.allow.Contains(bob.UUID))
}

func TestWhitelistLinkFromGame(t *testing.T) {
	f := newFixture(t, nil)

	reply := immediate(t, f.set.Whitelist(gameRequest(alice, command.Whitelist, "link", "777")))
	require.Equal(t, "Linked account 777", reply.Content)
	player, ok := f.allow.FindByLinked("777")
	require.True(t, ok)
	require.Equal(t, alice.UUID, player)

	reply = immediate(t, f.set.Whitelist(gameRequest(bob, command.Whitelist, "link", "888")))
	require.Equal(t, "[403] Not whitelisted", reply.Content)
	require.False(t, f.allow.Contains(bob.UUID))
}

func TestWhitelistLinkFromGroupChat(t *testing.T) {
	f := newFixture(t, func(env *Env) { env.Linker = fakeLinker{player: alice.UUID} })

	reply := deferred(t, f.set.Whitelist(groupRequest("555", command.Whitelist, "link", "ABC123")))
	require.Equal(t, "Linked to Alice", reply.Content)
	player, ok := f.allow.FindByLinked("555")
	require.True(t, ok)
	require.Equal(t, alice.UUID, player)
}

func TestWhitelistLinkFromGroupChatFailures(t *testing.T) {
	cases := []struct {
		linker AccountLinker
		want   string
	}{
		{linker: nil, want: "[503] Linking is not configured"},
		{linker: fakeLinker{err: authlink.ErrInvalidCode}, want: "[400] Invalid or expired code"},
		{linker: fakeLinker{err: authlink.ErrUnavailable}, want: "[502] Auth service unavailable"},
		{linker: fakeLinker{player: bob.UUID}, want: "[403] Player is not whitelisted"},
	}

	for _, tc := range cases {
		f := newFixture(t, func(env *Env) { env.Linker = tc.linker })
		reply := deferred(t, f.set.Whitelist(groupRequest("555", command.Whitelist, "link", "ABC123")))
		require.Equal(t, tc.want, reply.Content)
	}
}

func TestWhitelistLinkFromHTTP(t *testing.T) {
	f := newFixture(t, nil)

	req := bus.CommandRequest{
		Sender:  bus.HTTPSender(alice.UUID.String(), "Alice"),
		Origin:  bus.HTTPOrigin(bus.NewResponseSlot()),
		Command: command.Whitelist,
		Args:    []string{"link", "123"},
	}
	reply := immediate(t, f.set.Whitelist(req))
	require.Equal(t, http.StatusBadRequest, reply.Status)
}
