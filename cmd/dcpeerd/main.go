// Command dcpeerd joins one Direct Connect hub, advertises a local
// share, and serves file segments to peers. It wires together the
// hub, peer, sharetree, and slot packages into one running client:
// config, logger, and listeners. Download scheduling, the hasher, and
// any terminal UI are out of scope — this is the network-protocol
// daemon underneath them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dcpeer/dcpeer/config"
	"github.com/dcpeer/dcpeer/hub"
	"github.com/dcpeer/dcpeer/internal/logger"
	"github.com/dcpeer/dcpeer/netio"
	"github.com/dcpeer/dcpeer/peer"
	"github.com/dcpeer/dcpeer/persist"
	"github.com/dcpeer/dcpeer/runtime"
	"github.com/dcpeer/dcpeer/sharetree"
	"github.com/dcpeer/dcpeer/sink"
	"github.com/dcpeer/dcpeer/slot"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		hubAddr    = flag.String("hub", "", "hub connection string, e.g. dchub://hub.example.com")
		nick       = flag.String("nick", "", "nickname to use on the hub")
		listenAddr = flag.String("listen", ":1412", "address to accept incoming C↔C connections on")
		slots      = flag.Int("slots", 3, "configured upload slot count")
		logLevel   = flag.String("log-level", "INFO", "DEBUG, INFO, WARN, or ERROR")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *logLevel, Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintln(os.Stderr, "dcpeerd: logger init:", err)
		os.Exit(1)
	}

	if *hubAddr == "" || *nick == "" {
		fmt.Fprintln(os.Stderr, "dcpeerd: -hub and -nick are required")
		os.Exit(2)
	}

	g := config.Global{Nick: *nick, Slots: *slots}
	g.SetDefaults()
	if err := g.Validate(); err != nil {
		logger.Error("invalid global config", "error", err)
		os.Exit(2)
	}

	hubCfg, err := config.ParseHubAddr(*hubAddr)
	if err != nil {
		logger.Error("invalid hub address", "error", err)
		os.Exit(2)
	}
	hubCfg.SetDefaults(&g)
	if err := hubCfg.Validate(); err != nil {
		logger.Error("invalid hub config", "error", err)
		os.Exit(2)
	}

	d := newDaemon(g, *hubCfg, *listenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		logger.Error("dcpeerd exited with error", "error", err)
		os.Exit(1)
	}
}

// daemon owns the process-wide registries and the one hub + one
// listener this command runs, mirroring the teacher's Server type
// (shares/sessions/listener/wg) adapted to this module's domain.
type daemon struct {
	global config.Global
	hubCfg config.Hub

	root  *sharetree.Node
	index *sharetree.Index
	store persist.Store
	queue *persist.Queue

	hubs   *runtime.Registry[*hub.Session]
	hubKey runtime.Key
	peers  *runtime.Registry[*peer.Session]

	admitter *slot.Admitter
	sk       sink.Sink

	listener net.Listener
	listenOn string

	wg sync.WaitGroup
}

func newDaemon(g config.Global, h config.Hub, listenOn string) *daemon {
	store := persist.NewMemStore()
	peers := runtime.New[*peer.Session]()

	d := &daemon{
		global:   g,
		hubCfg:   h,
		root:     sharetree.NewRoot(""),
		index:    sharetree.NewIndex(),
		store:    store,
		queue:    persist.NewQueue(store, persist.DefaultRetryPolicy),
		hubs:     runtime.New[*hub.Session](),
		hubKey:   runtime.NewKey(),
		peers:    peers,
		listenOn: listenOn,
		sk:       sink.NewChannel(256),
	}
	d.admitter = slot.NewAdmitter(g.Slots, slot.CounterFunc(d.peersInUse))
	return d
}

// peersInUse re-scans the peer registry for sessions currently
// streaming bytes (§4.7: no cached counter).
func (d *daemon) peersInUse() int {
	return d.peers.Count(func(s *peer.Session) bool { return s.InUse() })
}

// Run dials the configured hub, starts the incoming listener, and
// blocks until ctx is cancelled or the hub goroutine returns. Only the
// hub runs under the errgroup; the accept loop runs beside it on d.wg,
// logs accept errors without ending Run, and stops at shutdown.
func (d *daemon) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.runHub(gctx) })

	if err := d.listen(gctx); err != nil {
		return err
	}

	err := g.Wait()
	d.shutdown()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *daemon) shutdown() {
	if d.listener != nil {
		d.listener.Close()
	}
	d.hubs.Range(func(_ runtime.Key, s *hub.Session) bool {
		s.Close()
		return true
	})
	d.peers.Range(func(_ runtime.Key, s *peer.Session) bool {
		s.Close()
		return true
	})
	d.queue.Close()
	d.wg.Wait()
}

// runHub owns the single configured hub connection: dial, and dispatch
// every inbound frame to the hub session. A non-cancelled io error is
// handed to the session, which arms its reconnect timer; the timer's
// callback only logs, and the hub is not dialed again.
func (d *daemon) runHub(ctx context.Context) error {
	dialect := hub.DialectLegacy
	delimiter := byte('|')
	if d.hubCfg.UseTLS {
		delimiter = '\n'
		dialect = hub.DialectModern
	}

	cfg := hub.Config{
		Nick:        d.hubCfg.Nick,
		NickRaw:     d.hubCfg.Nick,
		Password:    d.hubCfg.Password,
		Description: d.hubCfg.Description,
		Connection:  d.hubCfg.Connection,
		Email:       d.hubCfg.Email,
		Slots:       d.global.Slots,
	}

	session := hub.New(dialect, cfg, d.root, d.sk)
	d.hubs.PutAt(d.hubKey, session)
	defer d.hubs.Delete(d.hubKey)

	dispatch := func(frame []byte) {
		text := string(frame)
		var err error
		if dialect == hub.DialectLegacy {
			session.HandleLegacyFrame(text)
		} else {
			err = session.HandleModernFrame(text)
		}
		if err != nil {
			logger.Warn("hub: frame handling error", "error", err)
		}
	}

	onError := func(phase netio.Phase, kind netio.ErrorKind, err error) {
		logger.Warn("hub: transport error", "phase", phase, "error", err)
		session.HandleIOError(kind, func() {
			logger.Info("hub: reconnecting")
		})
	}

	conn, err := netio.Connect(ctx, d.hubCfg.Addr, "411", config.DialTimeout, netio.Options{
		Delimiter: delimiter,
		OnCommand: dispatch,
		OnError:   onError,
	})
	if err != nil {
		return fmt.Errorf("dcpeerd: connect to hub %s: %w", d.hubCfg.Addr, err)
	}
	session.Attach(conn)
	session.StartAdvertisementTicker()

	<-ctx.Done()
	return session.Close()
}

// listen starts accepting incoming C↔C connections (peers dialing
// us in response to $RevConnectToMe), mirroring the teacher's
// Listen/acceptLoop split.
func (d *daemon) listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.listenOn)
	if err != nil {
		return fmt.Errorf("dcpeerd: listen on %s: %w", d.listenOn, err)
	}
	d.listener = ln
	logger.Info("dcpeerd: accepting peer connections", "addr", ln.Addr())

	d.wg.Add(1)
	go d.acceptLoop(ctx, ln)
	return nil
}

func (d *daemon) acceptLoop(ctx context.Context, ln net.Listener) {
	defer d.wg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("dcpeerd: accept error", "error", err)
				continue
			}
		}
		d.wg.Add(1)
		go d.handlePeerConn(raw)
	}
}

func (d *daemon) handlePeerConn(raw net.Conn) {
	defer d.wg.Done()

	source := peer.Source{Root: d.root, Index: d.index, Store: d.store}
	session := peer.New(peer.Config{
		OwnNickRaw: d.hubCfg.Nick,
		Hubs:       d.hubs,
		HubKey:     d.hubKey,
		HasHub:     true,
		Source:     source,
		Admitter:   d.admitter,
	})
	key := d.peers.Put(session)

	free := func() { d.peers.Delete(key) }

	onCommand := func(frame []byte) {
		if err := session.HandleFrame(string(frame)); err != nil {
			logger.Warn("peer: frame handling error", "error", err)
			session.ArmFree(free)
		}
	}
	onError := func(phase netio.Phase, kind netio.ErrorKind, err error) {
		session.HandleIOError(kind, err, free)
	}

	conn := netio.Wrap(raw, netio.Options{Delimiter: '|', OnCommand: onCommand, OnError: onError})
	session.Attach(conn)
}
