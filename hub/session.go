package hub

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dcpeer/dcpeer/internal/dcerr"
	"github.com/dcpeer/dcpeer/internal/logger"
	"github.com/dcpeer/dcpeer/netio"
	"github.com/dcpeer/dcpeer/sharetree"
	"github.com/dcpeer/dcpeer/sink"
)

// Dialect selects which wire grammar a HubSession speaks.
type Dialect int

const (
	DialectLegacy Dialect = iota
	DialectModern
)

// Phase is the protocol sub-state (§3 HubSession "link-layer"):
// {protocol, identify, verify, normal} for the modern dialect, or its
// legacy analogue (connected -> validated).
type Phase int

const (
	PhaseProtocol Phase = iota
	PhaseIdentify
	PhaseVerify
	PhaseNormal
)

const (
	advertisementTickInterval = 5 * time.Minute
	reconnectDelay            = 30 * time.Second
)

// Config is the subset of a hub session's identity the session needs
// that isn't already on config.Hub/config.Global — kept local to avoid
// a dependency cycle back into the config package's validation duties.
type Config struct {
	Nick        string
	NickRaw     string
	Password    string
	Description string
	Connection  string
	Email       string
	Slots       int
	NoGetINFO   bool
}

// Session drives one upstream hub connection with either wire dialect.
type Session struct {
	mu sync.Mutex

	dialect Dialect
	conn    *netio.Conn
	cfg     Config
	sink    sink.Sink
	root    *sharetree.Node

	phase         Phase
	nickValidated bool
	receivedFirst bool
	joinComplete  bool

	roster *Roster
	grants map[string]bool

	ownSID SID
	isOp   bool
	isReg  bool

	lastAdvertisement *Advertisement

	advertiseTimer *time.Timer
	reconnectTimer *time.Timer
}

// New creates a Session for the given dialect; a nil sk discards every
// message. conn is supplied later via Attach, so unit tests can drive
// dispatch directly without one.
func New(dialect Dialect, cfg Config, root *sharetree.Node, sk sink.Sink) *Session {
	if sk == nil {
		sk = sink.Discard{}
	}
	return &Session{
		dialect: dialect,
		cfg:     cfg,
		sink:    sk,
		root:    root,
		roster:  NewRoster(),
		grants:  make(map[string]bool),
	}
}

// Attach binds the transport Conn once dialed.
func (s *Session) Attach(conn *netio.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// Roster exposes the live roster (read-mostly; callers should not
// mutate returned User values concurrently with dispatch).
func (s *Session) Roster() *Roster { return s.roster }

// SelfStatus reports this session's own standing, for the purposes of
// BuildAdvertisement across every open hub session.
func (s *Session) SelfStatus() SelfStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SelfStatus{Validated: s.nickValidated, IsOp: s.isOp, IsReg: s.isReg}
}

func (s *Session) send(frame string) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Send([]byte(frame)); err != nil {
		logger.Warn("hub: send failed", "error", err)
	}
}

// armReconnect starts the 30-second reconnect timer if one is not
// already running (§4.5.1: "A read or write error from §4.4 arms a
// 30-second reconnect timer").
func (s *Session) armReconnect(reconnect func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnectTimer != nil {
		return
	}
	s.reconnectTimer = time.AfterFunc(reconnectDelay, func() {
		s.mu.Lock()
		s.reconnectTimer = nil
		s.mu.Unlock()
		if reconnect != nil {
			reconnect()
		}
	})
}

// CancelReconnect clears any pending reconnect timer (manual disconnect).
func (s *Session) CancelReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

// HandleIOError processes a netio error event for this session
// (§7 propagation policy): io always disconnects; a non-cancelled io
// on a hub arms the reconnect timer.
func (s *Session) HandleIOError(kind netio.ErrorKind, reconnect func()) {
	if kind == netio.ErrKindCancelled {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Disconnect()
	}
	s.sink.Post(sink.PriorityMedium, "hub connection lost")
	s.armReconnect(reconnect)
}

// ---- Legacy dialect ----

// HandleLegacyFrame dispatches one '|'-delimited legacy command.
// Errors are logged and the frame dropped; only unrecoverable events
// (auth failure, name conflict) disconnect (§4.5.1, §7).
func (s *Session) HandleLegacyFrame(frame string) {
	switch {
	case strings.HasPrefix(frame, "$Lock "):
		s.onLock(frame)
	case strings.HasPrefix(frame, "$GetPass"):
		s.send("$MyPass " + s.cfg.Password)
	case strings.HasPrefix(frame, "$Hello "):
		s.onHello(strings.TrimPrefix(frame, "$Hello "))
	case strings.HasPrefix(frame, "$NickList "):
		s.onNickList(strings.TrimPrefix(frame, "$NickList "))
	case strings.HasPrefix(frame, "$OpList "):
		s.onOpList(strings.TrimPrefix(frame, "$OpList "))
	case strings.HasPrefix(frame, "$MyINFO $ALL "):
		s.onMyINFO(strings.TrimPrefix(frame, "$MyINFO $ALL "))
	case strings.HasPrefix(frame, "$Quit "):
		s.roster.Remove(strings.TrimPrefix(frame, "$Quit "))
	case strings.HasPrefix(frame, "$ForceMove "):
		s.sink.Post(sink.PriorityHigh, "moved: "+strings.TrimPrefix(frame, "$ForceMove "))
	case strings.HasPrefix(frame, "$BadPass"):
		s.sink.Post(sink.PriorityHigh, "bad password")
		if s.conn != nil {
			s.conn.Disconnect()
		}
	case strings.HasPrefix(frame, "$ValidateDenide"):
		s.sink.Post(sink.PriorityHigh, "nick already in use")
		if s.conn != nil {
			s.conn.Disconnect()
		}
	case strings.HasPrefix(frame, "$To: "):
		s.sink.Post(sink.PriorityLow, frame)
	default:
		if !strings.HasPrefix(frame, "$") {
			s.sink.Post(sink.PriorityLow, frame) // plain chat
		}
	}
}

func (s *Session) onLock(frame string) {
	challenge := strings.TrimPrefix(frame, "$Lock ")
	if idx := strings.IndexByte(challenge, ' '); idx >= 0 {
		challenge = challenge[:idx]
	}
	if !strings.HasPrefix(challenge, "EXTENDEDPROTOCOL") {
		s.sink.Post(sink.PriorityHigh, "hub lock missing EXTENDEDPROTOCOL marker")
		return
	}
	key, err := ComputeUnlockKey(challenge)
	if err != nil {
		logger.Warn("hub: unlock key computation failed", "error", err)
		return
	}
	s.send("$Supports NoGetINFO NoHello")
	s.send("$Key " + key)
	s.send("$ValidateNick " + s.cfg.NickRaw)
}

func (s *Session) onHello(nick string) {
	if nick == s.cfg.NickRaw {
		s.mu.Lock()
		s.nickValidated = true
		s.mu.Unlock()
		s.send("$Version 1,0091")
		s.sendAdvertisementLegacy()
		s.send("$GetNickList")
		return
	}
	if _, ok := s.roster.ByName(nick); !ok {
		s.roster.Put(&User{Name: nick, NameRaw: nick})
		if !s.cfg.NoGetINFO {
			s.send("$GetINFO " + nick + " " + s.cfg.NickRaw)
		}
	}
}

func (s *Session) onNickList(payload string) {
	for _, name := range SplitDollarList(payload) {
		if _, ok := s.roster.ByName(name); !ok {
			s.roster.Put(&User{Name: name, NameRaw: name})
		}
	}
}

func (s *Session) onOpList(payload string) {
	s.roster.ClearOpFlags()
	for _, name := range SplitDollarList(payload) {
		u, ok := s.roster.ByName(name)
		if !ok {
			u = &User{Name: name, NameRaw: name}
			s.roster.Put(u)
		}
		u.IsOp = true
		if name == s.cfg.NickRaw {
			s.mu.Lock()
			s.isOp = true
			s.mu.Unlock()
		}
	}
}

func (s *Session) onMyINFO(rest string) {
	idx := strings.IndexByte(rest, ' ')
	if idx < 0 {
		return
	}
	nick, payload := rest[:idx], rest[idx+1:]
	u := ParseMyINFO(nick, payload)
	s.roster.Put(u)
}

// ---- Modern dialect ----

// HandleModernFrame dispatches one newline-delimited modern frame.
func (s *Session) HandleModernFrame(line string) error {
	frame, err := ParseFrame(line)
	if err != nil {
		return dcerr.New(dcerr.KindProtocol, "hub.HandleModernFrame", err)
	}

	switch frame.Cmd {
	case "SID":
		return s.onISID(frame)
	case "INF":
		if frame.Tag == 'I' {
			s.onIINF(frame)
		} else {
			s.onBINF(frame)
		}
	case "QUI":
		return s.onIQUI(frame)
	case "STA":
		return s.onISTA(frame)
	}
	return nil
}

func (s *Session) onISID(frame Frame) error {
	if len(frame.Params) < 1 {
		return dcerr.New(dcerr.KindProtocol, "hub.onISID", fmt.Errorf("ISID missing sid"))
	}
	sid, err := ParseSID(frame.Params[0])
	if err != nil {
		return dcerr.New(dcerr.KindParse, "hub.onISID", err)
	}

	s.mu.Lock()
	s.ownSID = sid
	s.phase = PhaseIdentify
	s.mu.Unlock()

	s.send(fmt.Sprintf("BINF %s ID%s PD%s I40.0.0.0 VEncdc\\s1.0 NI%s SL%d HN0 HR0 HO0 DE%s EM%s",
		sid.String(), strings.Repeat("A", 39), strings.Repeat("A", 39), s.cfg.Nick, s.cfg.Slots, s.cfg.Description, s.cfg.Email))
	return nil
}

func (s *Session) onIINF(frame Frame) {
	s.mu.Lock()
	s.phase = PhaseNormal
	s.nickValidated = true
	s.mu.Unlock()
}

func (s *Session) onBINF(frame Frame) {
	sid, u, err := ParseBINF(frame.Params)
	if err != nil {
		logger.Warn("hub: malformed BINF dropped", "error", err)
		return
	}
	s.roster.Put(u)

	s.mu.Lock()
	isSelf := sid == s.ownSID
	alreadyReceived := s.receivedFirst
	s.receivedFirst = s.receivedFirst || isSelf
	if isSelf && alreadyReceived {
		s.joinComplete = true
	}
	s.mu.Unlock()
}

func (s *Session) onIQUI(frame Frame) error {
	if len(frame.Params) < 1 {
		return dcerr.New(dcerr.KindProtocol, "hub.onIQUI", fmt.Errorf("IQUI missing sid"))
	}
	sid, err := ParseSID(frame.Params[0])
	if err != nil {
		return dcerr.New(dcerr.KindParse, "hub.onIQUI", err)
	}
	s.roster.RemoveBySID(sid)

	s.mu.Lock()
	isSelf := sid == s.ownSID
	s.mu.Unlock()
	if isSelf {
		return dcerr.New(dcerr.KindProtocol, "hub.onIQUI", fmt.Errorf("removed by hub"))
	}
	return nil
}

func (s *Session) onISTA(frame Frame) error {
	if len(frame.Params) < 1 || len(frame.Params[0]) != 3 {
		return dcerr.New(dcerr.KindProtocol, "hub.onISTA", fmt.Errorf("ISTA malformed status code"))
	}
	severity := frame.Params[0][0]
	msg := strings.Join(frame.Params[1:], " ")
	switch severity {
	case '1':
		s.sink.Post(sink.PriorityMedium, msg)
		return nil
	case '2':
		s.sink.Post(sink.PriorityHigh, msg)
		return dcerr.New(dcerr.KindProtocol, "hub.onISTA", fmt.Errorf("fatal hub status: %s", msg))
	default:
		s.sink.Post(sink.PriorityLow, msg)
		return nil
	}
}

// ---- Advertisement tick ----

// sendAdvertisementLegacy sends the legacy $MyINFO self-description,
// suppressing a no-op re-send against the cache.
func (s *Session) sendAdvertisementLegacy() {
	s.sendAdvertisement(func(adv Advertisement) {
		active := "P"
		if adv.Active {
			active = "A"
		}
		tag := fmt.Sprintf("<dcpeer V:1.0,M:%s,H:%d/%d/%d,S:%d>", active, adv.HubsNormal, adv.HubsRegistered, adv.HubsOp, adv.Slots)
		myinfo := fmt.Sprintf("$MyINFO $ALL %s %s%s$ $%s%s$%s$%s$",
			s.cfg.NickRaw, adv.Description, tag, adv.Connection, "\x01", adv.Email, strconv.FormatUint(adv.ShareSize, 10))
		s.send(myinfo)
	})
}

// sendAdvertisementModern sends a BINF re-advertisement under the own
// sid, suppressing a no-op re-send against the cache (§4.5.2: "on
// every 5-minute tick, rebuild the advertisement; suppress if every
// watched field is unchanged").
func (s *Session) sendAdvertisementModern() {
	s.mu.Lock()
	sid := s.ownSID
	s.mu.Unlock()

	s.sendAdvertisement(func(adv Advertisement) {
		su := "TCP4"
		if !adv.Active {
			su = ""
		}
		binf := fmt.Sprintf("BINF %s NI%s DE%s EM%s SL%d SS%d HN%d HR%d HO%d SU%s",
			sid.String(), s.cfg.Nick, adv.Description, adv.Email, adv.Slots, adv.ShareSize,
			adv.HubsNormal, adv.HubsRegistered, adv.HubsOp, su)
		s.send(binf)
	})
}

// sendAdvertisement computes the advertisement, suppresses it if the
// session is not yet validated or nothing watched has changed, and
// otherwise hands it to emit and updates the cache.
func (s *Session) sendAdvertisement(emit func(Advertisement)) {
	s.mu.Lock()
	if !s.nickValidated {
		s.mu.Unlock()
		return
	}
	adv := BuildAdvertisement(nil, SelfStatus{Validated: true, IsOp: s.isOp, IsReg: s.isReg},
		s.cfg.Slots, 0, s.cfg.Description, s.cfg.Connection, s.cfg.Email, true)
	suppressed := equalWatched(s.lastAdvertisement, &adv)
	s.lastAdvertisement = &adv
	s.mu.Unlock()

	if suppressed {
		return
	}
	emit(adv)
}

// StartAdvertisementTicker begins the 5-minute self-advertisement tick.
// Stop it via CancelReconnect-style cleanup (Close).
func (s *Session) StartAdvertisementTicker() {
	s.mu.Lock()
	if s.advertiseTimer != nil {
		s.mu.Unlock()
		return
	}
	s.advertiseTimer = time.AfterFunc(advertisementTickInterval, s.onAdvertisementTick)
	s.mu.Unlock()
}

func (s *Session) onAdvertisementTick() {
	if s.dialect == DialectLegacy {
		s.sendAdvertisementLegacy()
	} else {
		s.sendAdvertisementModern()
	}
	s.mu.Lock()
	s.advertiseTimer = time.AfterFunc(advertisementTickInterval, s.onAdvertisementTick)
	s.mu.Unlock()
}

// Close stops all timers and disconnects the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.advertiseTimer != nil {
		s.advertiseTimer.Stop()
	}
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}
