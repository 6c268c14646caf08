package peer

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dcpeer/dcpeer/hub"
	"github.com/dcpeer/dcpeer/netio"
	"github.com/dcpeer/dcpeer/persist"
	"github.com/dcpeer/dcpeer/runtime"
	"github.com/dcpeer/dcpeer/sharetree"
	"github.com/dcpeer/dcpeer/sink"
	"github.com/dcpeer/dcpeer/slot"
)

type fakeHubs struct {
	key     runtime.Key
	session *hub.Session
}

func (f fakeHubs) Get(k runtime.Key) (*hub.Session, bool) {
	if k == f.key {
		return f.session, true
	}
	return nil, false
}

func listenLocal(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return ln, ln.Addr().String()
}

func dialAttached(t *testing.T, addr string, onCommand func([]byte)) *netio.Conn {
	t.Helper()
	c, err := netio.Connect(context.Background(), addr, "411", time.Second, netio.Options{
		Delimiter: '|',
		OnCommand: onCommand,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func newSessionWithHub(t *testing.T, nick string) *Session {
	t.Helper()
	h := hub.New(hub.DialectLegacy, hub.Config{Nick: "me", NickRaw: "me"}, nil, sink.Discard{})
	h.Roster().Put(&hub.User{Name: nick, NameRaw: nick})

	key := runtime.NewKey()
	admitter := slot.NewAdmitter(2, slot.CounterFunc(func() int { return 0 }))

	return New(Config{
		OwnNickRaw: "me",
		Hubs:       fakeHubs{key: key, session: h},
		HubKey:     key,
		HasHub:     true,
		Admitter:   admitter,
	})
}

func TestOnMyNickRejectedWithoutHubBackReference(t *testing.T) {
	s := New(Config{OwnNickRaw: "me", HasHub: false})
	if err := s.HandleFrame("$MyNick alice"); err == nil {
		t.Error("HandleFrame($MyNick) without a hub back-reference should error")
	}
}

func TestOnMyNickAcceptsWithHubBackReference(t *testing.T) {
	s := newSessionWithHub(t, "alice")
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("HandleFrame($MyNick): %v", err)
	}
	if s.State() != StateHandshaking {
		t.Errorf("State() = %v, want StateHandshaking", s.State())
	}
}

func TestOnMyNickRejectsDuplicate(t *testing.T) {
	s := newSessionWithHub(t, "alice")
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("first $MyNick: %v", err)
	}
	if err := s.HandleFrame("$MyNick alice"); err == nil {
		t.Error("duplicate $MyNick should be rejected")
	}
}

func TestADCGetBeforeMyNickDisconnectsWithDiagnostic(t *testing.T) {
	s := newSessionWithHub(t, "alice")
	err := s.HandleFrame("$ADCGET file /x 0 -1")
	if err == nil {
		t.Fatal("ADCGET before $MyNick should error")
	}
	if got := err.Error(); !contains(got, "received $ADCGET before $MyNick") {
		t.Errorf("error = %q, want it to mention the $ADCGET-before-$MyNick diagnostic", got)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func TestADCGetFileNotAvailable(t *testing.T) {
	ln, addr := listenLocal(t)
	defer ln.Close()

	frames := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		frames <- string(buf[:n])
	}()

	s := newSessionWithHub(t, "alice")
	s.Attach(dialAttached(t, addr, nil))
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("$MyNick: %v", err)
	}

	if err := s.HandleFrame("$ADCGET file /absent 0 -1"); err != nil {
		t.Fatalf("HandleFrame(ADCGET): %v", err)
	}

	select {
	case f := <-frames:
		if f != "$Error File Not Available|" {
			t.Errorf("frame = %q, want %q", f, "$Error File Not Available|")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestADCGetFileServesExactRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	content := make([]byte, 10*1024*1024)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root := sharetree.NewRoot("")
	f := sharetree.NewFile("big.bin", uint64(len(content)), [24]byte{}, false, 0)
	f.SetRealPath(path)
	if err := sharetree.InsertChild(root, f); err != nil {
		t.Fatalf("InsertChild: %v", err)
	}

	ln, addr := listenLocal(t)
	defer ln.Close()

	frames := make(chan string, 1)
	payload := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('|')
		frames <- line

		body := make([]byte, 50)
		io.ReadFull(r, body)
		payload <- body
	}()

	s := newSessionWithHub(t, "alice")
	s.source = Source{Root: root, Index: sharetree.NewIndex()}
	s.Attach(dialAttached(t, addr, nil))
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("$MyNick: %v", err)
	}

	if err := s.HandleFrame("$ADCGET file /big.bin 100 50"); err != nil {
		t.Fatalf("HandleFrame(ADCGET): %v", err)
	}

	select {
	case got := <-frames:
		want := "$ADCSND file /big.bin 100 50|"
		if got != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for $ADCSND")
	}

	select {
	case body := <-payload:
		if len(body) != 50 {
			t.Errorf("streamed %d bytes, want 50", len(body))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file bytes")
	}
}

func TestADCGetFileMaxedOutWhenNoSlotFree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	content := make([]byte, 32*1024)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	root := sharetree.NewRoot("")
	f := sharetree.NewFile("big.bin", uint64(len(content)), [24]byte{}, false, 0)
	f.SetRealPath(path)
	if err := sharetree.InsertChild(root, f); err != nil {
		t.Fatalf("InsertChild: %v", err)
	}

	ln, addr := listenLocal(t)
	defer ln.Close()

	frames := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		frames <- string(buf[:n])
	}()

	s := newSessionWithHub(t, "alice")
	s.source = Source{Root: root, Index: sharetree.NewIndex()}
	s.admitter = slot.NewAdmitter(1, slot.CounterFunc(func() int { return 1 }))
	s.Attach(dialAttached(t, addr, nil))
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("$MyNick: %v", err)
	}

	if err := s.HandleFrame("$ADCGET file /big.bin 0 -1"); err != nil {
		t.Fatalf("HandleFrame(ADCGET): %v", err)
	}

	select {
	case got := <-frames:
		if got != "$MaxedOut|" {
			t.Errorf("frame = %q, want %q", got, "$MaxedOut|")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for $MaxedOut")
	}
}

func TestADCGetFilelistWaivesSlot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "files.xml.bz2")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ln, addr := listenLocal(t)
	defer ln.Close()

	frames := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		line, _ := r.ReadString('|')
		frames <- line
	}()

	s := newSessionWithHub(t, "alice")
	s.source = Source{Root: sharetree.NewRoot(""), Index: sharetree.NewIndex(), FileListPath: path}
	s.admitter = slot.NewAdmitter(0, slot.CounterFunc(func() int { return 99 }))
	s.Attach(dialAttached(t, addr, nil))
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("$MyNick: %v", err)
	}

	if err := s.HandleFrame("$ADCGET file files.xml.bz2 0 -1"); err != nil {
		t.Fatalf("HandleFrame(ADCGET): %v", err)
	}

	select {
	case got := <-frames:
		want := "$ADCSND file files.xml.bz2 0 4|"
		if got != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for $ADCSND")
	}
}

func TestADCGetTTHLNonzeroStartRejected(t *testing.T) {
	ln, addr := listenLocal(t)
	defer ln.Close()

	frames := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		frames <- string(buf[:n])
	}()

	s := newSessionWithHub(t, "alice")
	s.source = Source{Store: persist.NewMemStore()}
	s.Attach(dialAttached(t, addr, nil))
	if err := s.HandleFrame("$MyNick alice"); err != nil {
		t.Fatalf("$MyNick: %v", err)
	}
	if err := s.HandleFrame("$ADCGET tthl TTH/ABCDEFGHIJKLMNOPQRSTUVWXYZ234567ABCDEFG 5 -1"); err != nil {
		t.Fatalf("HandleFrame(ADCGET tthl): %v", err)
	}

	select {
	case got := <-frames:
		want := "$Error Invalid ADCGET arguments|"
		if got != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for $Error")
	}
}

func TestArmFreeDoesNotRearmOnSecondCall(t *testing.T) {
	s := newSessionWithHub(t, "alice")
	s.ArmFree(func() {})
	s.mu.Lock()
	first := s.freeTimer
	s.mu.Unlock()

	s.ArmFree(func() { t.Error("ArmFree called twice should not rearm") })
	s.mu.Lock()
	second := s.freeTimer
	s.mu.Unlock()

	if first != second {
		t.Error("a second ArmFree call replaced the pending timer, want it left alone")
	}
	s.Close()
}
