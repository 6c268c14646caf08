package hub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dcpeer/dcpeer/netio"
	"github.com/dcpeer/dcpeer/sink"
)

func newTestSession(dialect Dialect) *Session {
	cfg := Config{Nick: "me", NickRaw: "me", Slots: 2, Description: "d", Connection: "LAN", Email: "e@x.y"}
	return New(dialect, cfg, nil, sink.NewChannel(16))
}

func TestHandleLegacyFrameHelloValidatesOwnNick(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.HandleLegacyFrame("$Hello me")
	if !s.SelfStatus().Validated {
		t.Error("own $Hello must validate the session")
	}
}

func TestHandleLegacyFrameHelloAddsOtherUser(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.cfg.NoGetINFO = true
	s.HandleLegacyFrame("$Hello alice")
	if _, ok := s.Roster().ByName("alice"); !ok {
		t.Error("$Hello for another nick should add a roster entry")
	}
}

func TestHandleLegacyFrameNickList(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.HandleLegacyFrame("$NickList alice$$bob$$")
	if _, ok := s.Roster().ByName("alice"); !ok {
		t.Error("alice missing from roster after $NickList")
	}
	if _, ok := s.Roster().ByName("bob"); !ok {
		t.Error("bob missing from roster after $NickList")
	}
}

func TestHandleLegacyFrameOpListClearsStaleFlags(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.Roster().Put(&User{Name: "alice", IsOp: true})
	s.Roster().Put(&User{Name: "bob", IsOp: true})

	s.HandleLegacyFrame("$OpList alice$$")

	alice, _ := s.Roster().ByName("alice")
	bob, _ := s.Roster().ByName("bob")
	if !alice.IsOp {
		t.Error("alice reasserted in OpList should stay op")
	}
	if bob.IsOp {
		t.Error("bob not reasserted should be cleared")
	}
}

func TestHandleLegacyFrameMyINFOUpdatesRoster(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.HandleLegacyFrame("$MyINFO $ALL alice descr<++ V:1,M:A,H:1/0/0,S:4>$ $Cable$$1000$")
	u, ok := s.Roster().ByName("alice")
	if !ok {
		t.Fatal("alice should be present after $MyINFO")
	}
	if u.Slots != 4 {
		t.Errorf("Slots = %d, want 4", u.Slots)
	}
	if u.ShareSize != 1000 {
		t.Errorf("ShareSize = %d, want 1000", u.ShareSize)
	}
}

func TestHandleLegacyFrameQuitRemovesUser(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.Roster().Put(&User{Name: "alice"})
	s.HandleLegacyFrame("$Quit alice")
	if _, ok := s.Roster().ByName("alice"); ok {
		t.Error("alice should be removed after $Quit")
	}
}

func TestModernISIDSetsOwnSIDAndPhase(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISID ABCD"); err != nil {
		t.Fatalf("HandleModernFrame(ISID): %v", err)
	}
	if s.ownSID.String() != "ABCD" {
		t.Errorf("ownSID = %s, want ABCD", s.ownSID.String())
	}
	if s.phase != PhaseIdentify {
		t.Errorf("phase = %v, want PhaseIdentify", s.phase)
	}
}

func TestModernBINFAddsRosterEntry(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame(`BINF WXYZ NIalice SL2`); err != nil {
		t.Fatalf("HandleModernFrame(BINF): %v", err)
	}
	u, ok := s.Roster().ByName("alice")
	if !ok {
		t.Fatal("alice should be present after BINF")
	}
	if u.Slots != 2 {
		t.Errorf("Slots = %d, want 2", u.Slots)
	}
}

func TestModernIQUIRemovesSelfReturnsError(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISID ABCD"); err != nil {
		t.Fatalf("ISID: %v", err)
	}
	if err := s.HandleModernFrame("IQUI ABCD"); err == nil {
		t.Error("IQUI removing our own SID should surface an error")
	}
}

func TestModernIQUIRemovesOtherUserNoError(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISID ABCD"); err != nil {
		t.Fatalf("ISID: %v", err)
	}
	if err := s.HandleModernFrame(`BINF WXYZ NIalice`); err != nil {
		t.Fatalf("BINF: %v", err)
	}
	if err := s.HandleModernFrame("IQUI WXYZ"); err != nil {
		t.Errorf("IQUI for another sid should not error, got %v", err)
	}
	if _, ok := s.Roster().ByName("alice"); ok {
		t.Error("alice should be removed from roster after IQUI")
	}
}

func TestModernISTASeverityTwoIsFatal(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISTA 200 hub\\sfull"); err == nil {
		t.Error("ISTA severity 2 should surface a fatal error")
	}
}

func TestModernISTASeverityOneIsNotFatal(t *testing.T) {
	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISTA 100 notice"); err != nil {
		t.Errorf("ISTA severity 1 should not error, got %v", err)
	}
}

func TestOnAdvertisementTickSendsBINFForModernDialect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
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

	s := newTestSession(DialectModern)
	if err := s.HandleModernFrame("ISID ABCD"); err != nil {
		t.Fatalf("ISID: %v", err)
	}
	if err := s.HandleModernFrame("IINF NIme"); err != nil {
		t.Fatalf("IINF: %v", err)
	}

	conn, err := netio.Connect(context.Background(), ln.Addr().String(), "411", time.Second, netio.Options{Delimiter: '\n'})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Disconnect()
	s.Attach(conn)

	s.onAdvertisementTick()
	s.mu.Lock()
	if s.advertiseTimer != nil {
		s.advertiseTimer.Stop()
	}
	s.mu.Unlock()

	select {
	case got := <-frames:
		if len(got) < 4 || got[:4] != "BINF" {
			t.Errorf("modern tick frame = %q, want it to start with BINF", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for modern-dialect advertisement tick")
	}
}

func TestCloseStopsTimersWithoutConn(t *testing.T) {
	s := newTestSession(DialectLegacy)
	s.StartAdvertisementTicker()
	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
