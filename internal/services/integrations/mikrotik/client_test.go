package mikrotik

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"
)

type fakeConn struct {
	sentences [][]string
	replies   map[string]*routeros.Reply
	runErr    error
	closed    int
}

func (f *fakeConn) Run(sentence ...string) (*routeros.Reply, error) {
	f.sentences = append(f.sentences, sentence)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if reply, ok := f.replies[sentence[0]]; ok {
		return reply, nil
	}
	return &routeros.Reply{}, nil
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func newFakeClient(fake *fakeConn) *Client {
	c := NewClient(Config{Host: "192.0.2.1", Username: "admin"})
	c.dial = func(context.Context, Config) (conn, error) { return fake, nil }
	c.logf = func(string, ...any) {}
	return c
}

func reply(entries ...map[string]string) *routeros.Reply {
	r := &routeros.Reply{}
	for _, m := range entries {
		r.Re = append(r.Re, &proto.Sentence{Word: "!re", Map: m})
	}
	return r
}

func TestNewGatewayDisabledWithoutHost(t *testing.T) {
	if _, ok := NewGateway(Config{}).(Disabled); !ok {
		t.Fatal("expected disabled gateway")
	}
	if _, ok := NewGateway(Config{Host: "10.0.0.1", Username: "admin"}).(*Client); !ok {
		t.Fatal("expected routeros client")
	}
}

func TestAddHotspotUserSkipsEmptyAttributes(t *testing.T) {
	fake := &fakeConn{}
	c := newFakeClient(fake)

	err := c.AddHotspotUser(context.Background(), HotspotUser{Name: "alice", Password: "alice", MACAddress: "AA:BB:CC:DD:EE:FF"})
	if err != nil {
		t.Fatalf("add hotspot user: %v", err)
	}
	if len(fake.sentences) != 1 || fake.closed != 1 {
		t.Fatalf("expected one command and one close, got %d/%d", len(fake.sentences), fake.closed)
	}
	got := strings.Join(fake.sentences[0], " ")
	want := "/ip/hotspot/user/add =name=alice =password=alice =profile=default =mac-address=AA:BB:CC:DD:EE:FF"
	if got != want {
		t.Fatalf("sentence = %q, want %q", got, want)
	}
}

func TestUpdateHotspotUserDisables(t *testing.T) {
	fake := &fakeConn{replies: map[string]*routeros.Reply{
		"/ip/hotspot/user/print": reply(map[string]string{".id": "*7"}),
	}}
	c := newFakeClient(fake)
	disabled := true

	if err := c.UpdateHotspotUser(context.Background(), "alice", HotspotUserUpdate{Disabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := strings.Join(fake.sentences[1], " ")
	if got != "/ip/hotspot/user/set =.id=*7 =disabled=yes" {
		t.Fatalf("unexpected set sentence %q", got)
	}
}

func TestRemoveMissingUserReturnsNotFound(t *testing.T) {
	c := newFakeClient(&fakeConn{})
	if err := c.RemoveHotspotUser(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := c.RemovePPPSecret(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDisconnectUserRemovesEveryActiveEntry(t *testing.T) {
	fake := &fakeConn{replies: map[string]*routeros.Reply{
		"/ip/hotspot/active/print": reply(map[string]string{".id": "*1"}, map[string]string{".id": "*2"}),
	}}
	c := newFakeClient(fake)

	if err := c.DisconnectUser(context.Background(), "alice"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if len(fake.sentences) != 3 {
		t.Fatalf("expected print plus two removes, got %v", fake.sentences)
	}
	if fake.sentences[0][1] != "?user=alice" {
		t.Fatalf("expected query by user, got %v", fake.sentences[0])
	}
}

func TestActiveUsersMapsFields(t *testing.T) {
	fake := &fakeConn{replies: map[string]*routeros.Reply{
		"/ip/hotspot/active/print": reply(map[string]string{".id": "*1", "user": "alice", "address": "10.0.0.5", "mac-address": "AA:BB:CC:DD:EE:FF", "bytes-in": "100"}),
	}}
	users, err := newFakeClient(fake).ActiveUsers(context.Background())
	if err != nil {
		t.Fatalf("active users: %v", err)
	}
	if len(users) != 1 || users[0].User != "alice" || users[0].Address != "10.0.0.5" || users[0].BytesIn != "100" {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestRunErrorIsWrapped(t *testing.T) {
	c := newFakeClient(&fakeConn{runErr: errors.New("failure: already have user with this name")})
	err := c.CreateUserProfile(context.Background(), Profile{Name: "daily", RateLimit: "2048k/1024k"})
	if err == nil || !strings.Contains(err.Error(), "mikrotik create profile") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDialErrorIsReported(t *testing.T) {
	c := NewClient(Config{Host: "192.0.2.1", Username: "admin"})
	c.dial = func(context.Context, Config) (conn, error) { return nil, errors.New("connection refused") }
	if err := c.AddIPPool(context.Background(), IPPool{Name: "pool", Ranges: "10.0.0.10-10.0.0.20"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestDisabledGatewaySucceeds(t *testing.T) {
	var logged []string
	d := Disabled{Logf: func(format string, args ...any) { logged = append(logged, format) }}
	if err := d.AddHotspotUser(context.Background(), HotspotUser{Name: "alice"}); err != nil {
		t.Fatalf("disabled add: %v", err)
	}
	users, err := d.ActiveUsers(context.Background())
	if err != nil || len(users) != 0 {
		t.Fatalf("disabled active users = %v, %v", users, err)
	}
	if len(logged) != 1 {
		t.Fatalf("expected one log line, got %d", len(logged))
	}
}
