package peer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dcpeer/dcpeer/hub"
	"github.com/dcpeer/dcpeer/internal/dcerr"
	"github.com/dcpeer/dcpeer/netio"
	"github.com/dcpeer/dcpeer/runtime"
	"github.com/dcpeer/dcpeer/slot"
)

// State is the C↔C handshake progression (§4.6).
type State int

const (
	StateConnected State = iota
	StateHandshaking
	StateReady
)

// freeDelay is how long a disconnected session lingers in the registry
// so in-flight reply frames can drain (§4.6 "Disconnection").
const freeDelay = 30 * time.Second

// Hubs is the narrow view peer needs of the live hub-session arena: a
// non-owning lookup by key, never a raw pointer, per the "arena +
// index" pattern (§3).
type Hubs interface {
	Get(runtime.Key) (*hub.Session, bool)
}

// Session is one direct peer connection: handshake plus the
// single-request-at-a-time file-serving loop.
type Session struct {
	mu sync.Mutex

	conn     *netio.Conn
	hubs     Hubs
	hubKey   runtime.Key
	hasHub   bool
	source   Source
	admitter *slot.Admitter

	state State

	ownNickRaw  string
	peerNickRaw string
	peerNick    string

	supportsADCGet bool

	lastVirtualPath string
	lastFileSize    uint64
	lastOffset      int64
	lastLength      int64

	lastErr error

	freeTimer *time.Timer
}

// Config carries the fixed identity/collaborators a Session needs at
// construction.
type Config struct {
	OwnNickRaw string
	Hubs       Hubs
	HubKey     runtime.Key
	HasHub     bool
	Source     Source
	Admitter   *slot.Admitter
}

// New constructs a Session in the connected state, awaiting $MyNick.
func New(cfg Config) *Session {
	return &Session{
		ownNickRaw: cfg.OwnNickRaw,
		hubs:       cfg.Hubs,
		hubKey:     cfg.HubKey,
		hasHub:     cfg.HasHub,
		source:     cfg.Source,
		admitter:   cfg.Admitter,
		state:      StateConnected,
	}
}

// Attach binds the transport once dialed/accepted.
func (s *Session) Attach(conn *netio.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// State reports the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError reports the first error that sealed the connection, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// InUse reports whether this session is currently streaming file
// bytes — the predicate slot.Admitter counts across the registry.
func (s *Session) InUse() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.FileBytesRemaining() > 0
}

func (s *Session) send(frame string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.Send([]byte(frame)); err != nil {
		s.seal(dcerr.New(dcerr.KindIO, "peer.send", err))
	}
}

// seal records err as the session's last error if one isn't already
// set; the first error during a command seals the connection (§3).
func (s *Session) seal(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.lastErr == nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

// HandleFrame dispatches one '|'-delimited line from the peer.
func (s *Session) HandleFrame(frame string) error {
	switch {
	case strings.HasPrefix(frame, "$MyNick "):
		return s.onMyNick(strings.TrimPrefix(frame, "$MyNick "))
	case strings.HasPrefix(frame, "$Lock "):
		return s.onLock(strings.TrimPrefix(frame, "$Lock "))
	case strings.HasPrefix(frame, "$Supports "):
		return s.onSupports(strings.TrimPrefix(frame, "$Supports "))
	case strings.HasPrefix(frame, "$ADCGET "):
		return s.onADCGet(frame)
	}
	return nil
}

func (s *Session) onMyNick(nick string) error {
	s.mu.Lock()
	if !s.hasHub {
		s.mu.Unlock()
		err := dcerr.New(dcerr.KindProtocol, "peer.onMyNick", fmt.Errorf("no hub back-reference, rejecting $MyNick"))
		s.seal(err)
		return err
	}
	hubSession, ok := s.hubs.Get(s.hubKey)
	if !ok {
		s.mu.Unlock()
		err := dcerr.New(dcerr.KindProtocol, "peer.onMyNick", fmt.Errorf("hub session no longer open"))
		s.seal(err)
		return err
	}
	if s.peerNickRaw != "" {
		s.mu.Unlock()
		err := dcerr.New(dcerr.KindProtocol, "peer.onMyNick", fmt.Errorf("duplicate $MyNick on session"))
		s.seal(err)
		return err
	}
	s.peerNickRaw = nick
	s.peerNick = nick
	s.state = StateHandshaking
	s.mu.Unlock()

	if u, ok := hubSession.Roster().ByName(nick); ok {
		s.mu.Lock()
		s.peerNick = u.Name
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) onLock(challenge string) error {
	if idx := strings.IndexByte(challenge, ' '); idx >= 0 {
		challenge = challenge[:idx]
	}
	if !strings.HasPrefix(challenge, "EXTENDEDPROTOCOL") {
		err := dcerr.New(dcerr.KindProtocol, "peer.onLock", fmt.Errorf("lock missing EXTENDEDPROTOCOL marker"))
		s.seal(err)
		return err
	}
	key, err := hub.ComputeUnlockKey(challenge)
	if err != nil {
		wrapped := dcerr.New(dcerr.KindParse, "peer.onLock", err)
		s.seal(wrapped)
		return wrapped
	}
	s.send("$Supports MiniSlots XmlBZList ADCGet TTHL TTHF")
	s.send("$Direction Upload 0")
	s.send("$Key " + key)
	return nil
}

func (s *Session) onSupports(caps string) error {
	fields := strings.Fields(caps)
	for _, c := range fields {
		if c == "ADCGet" {
			s.mu.Lock()
			s.supportsADCGet = true
			s.mu.Unlock()
			return nil
		}
	}
	err := dcerr.New(dcerr.KindProtocol, "peer.onSupports", fmt.Errorf("peer does not support ADCGet"))
	s.seal(err)
	return err
}

func (s *Session) onADCGet(frame string) error {
	s.mu.Lock()
	gotNick := s.peerNickRaw != ""
	s.mu.Unlock()
	if !gotNick {
		err := dcerr.New(dcerr.KindProtocol, "peer.onADCGet", fmt.Errorf("received $ADCGET before $MyNick"))
		s.seal(err)
		return err
	}

	req, err := ParseADCGet(frame)
	if err != nil {
		wrapped := dcerr.New(dcerr.KindParse, "peer.onADCGet", err)
		s.seal(wrapped)
		return wrapped
	}

	switch req.Type {
	case RequestTTHL:
		return s.serveTTHL(req)
	case RequestFile:
		return s.serveFile(req)
	}
	return nil
}

func (s *Session) serveTTHL(req Request) error {
	if req.Start != 0 {
		s.send("$Error Invalid ADCGET arguments")
		return nil
	}
	blob, ok := s.source.resolveTTHL(req.Identifier)
	if !ok {
		s.send("$Error File Not Available")
		return nil
	}
	s.send(fmt.Sprintf("$ADCSND tthl %s 0 %d", req.Identifier, len(blob)))
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.SendRaw(blob); err != nil {
		wrapped := dcerr.New(dcerr.KindIO, "peer.serveTTHL", err)
		s.seal(wrapped)
		return wrapped
	}
	return nil
}

func (s *Session) serveFile(req Request) error {
	resolved, ok := s.source.resolveFile(req.Identifier)
	if !ok {
		s.send("$Error File Not Available")
		return nil
	}

	size, okStat := statRegularFile(resolved.path)
	if !okStat || req.Start > int64(size) {
		s.send("$Error File Not Available")
		return nil
	}

	length := req.Bytes
	if length < 0 || length > int64(size)-req.Start {
		length = int64(size) - req.Start
	}

	if !resolved.slotWaived && size >= minSlotSize {
		if !s.admitter.Admit() {
			s.send("$MaxedOut")
			return nil
		}
	}

	s.mu.Lock()
	s.lastVirtualPath = req.Identifier
	s.lastFileSize = size
	s.lastOffset = req.Start
	s.lastLength = length
	conn := s.conn
	s.mu.Unlock()

	s.send(fmt.Sprintf("$ADCSND file %s %d %d", escapeIdentifier(req.Identifier), req.Start, length))
	if conn == nil {
		return nil
	}
	if err := conn.Sendfile(resolved.path, req.Start, length); err != nil {
		wrapped := dcerr.New(dcerr.KindIO, "peer.serveFile", err)
		s.seal(wrapped)
		return wrapped
	}
	return nil
}

// escapeIdentifier escapes '$' and '|', the legacy wire format's
// delimiter-class bytes (§6), inside an echoed identifier.
func escapeIdentifier(id string) string {
	id = strings.ReplaceAll(id, "$", "&#36;")
	id = strings.ReplaceAll(id, "|", "&#124;")
	return id
}

// HandleIOError processes a netio error event (§7): any io error seals
// the session and schedules its disconnect/free.
func (s *Session) HandleIOError(kind netio.ErrorKind, err error, onFreed func()) {
	if kind != netio.ErrKindCancelled {
		s.seal(dcerr.New(dcerr.KindIO, "peer.io", err))
	}
	s.ArmFree(onFreed)
}

// ArmFree starts the 30-second deferred free timer (§4.6
// "Disconnection"): the transport is not closed and the session is not
// removed from the registry until the timer fires, letting in-flight
// reply frames drain.
func (s *Session) ArmFree(onFreed func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.freeTimer != nil {
		return
	}
	s.freeTimer = time.AfterFunc(freeDelay, func() {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Disconnect()
		}
		if onFreed != nil {
			onFreed()
		}
	})
}

// Close disconnects the transport and stops any pending free timer
// immediately (used for tests and manual teardown).
func (s *Session) Close() error {
	s.mu.Lock()
	if s.freeTimer != nil {
		s.freeTimer.Stop()
		s.freeTimer = nil
	}
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}
