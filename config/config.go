// Package config holds the in-memory settings fed to a hub session, a
// peer session, and the slot admitter. Parsing these out of an on-disk
// file format is out of scope (see spec.md's Non-goals); this package
// only owns the struct shape, defaulting, and validation every other
// package is handed.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// TLSPolicy selects how a hub or peer connection negotiates TLS.
type TLSPolicy string

const (
	TLSDisabled TLSPolicy = "disabled"
	TLSPrefer   TLSPolicy = "prefer"
	TLSRequire  TLSPolicy = "require"
)

// Identity is the process-wide client identity: CID/PID are the
// long-term client identity and its private preimage (§6).
type Identity struct {
	CID [24]byte `validate:"-"`
	PID [24]byte `validate:"-"`
}

// Global holds the settings that apply across every hub the client joins.
type Global struct {
	Nick         string    `validate:"required,max=64"`
	Password     string    `validate:"-"`
	Description  string    `validate:"max=256"`
	Connection   string    `validate:"max=64"`
	Email        string    `validate:"omitempty,email"`
	Slots        int       `validate:"gte=0"`
	DownloadDir  string    `validate:"-"`
	IncomingDir  string    `validate:"-"`
	TLSPolicy    TLSPolicy `validate:"omitempty,oneof=disabled prefer require"`
	Identity     Identity  `validate:"-"`
}

// SetDefaults fills in the zero-value fields the rest of the client
// relies on being non-empty.
func (g *Global) SetDefaults() {
	if g.Slots == 0 {
		g.Slots = 3
	}
	if g.Connection == "" {
		g.Connection = "LAN(T3)"
	}
	if g.TLSPolicy == "" {
		g.TLSPolicy = TLSPrefer
	}
}

// Validate checks the settings a hub session cannot function without.
func (g *Global) Validate() error {
	return validate.Struct(g)
}

// Hub holds the per-hub settings (§6: encoding, description, connection,
// email, nick, password, hubaddr are all per-hub keys; nick/description/
// connection/email default to the Global values when empty).
type Hub struct {
	Addr     string `validate:"required"`
	Encoding string `validate:"required"`
	UseTLS   bool   `validate:"-"`

	Nick        string `validate:"omitempty,max=64"`
	Password    string `validate:"-"`
	Description string `validate:"max=256"`
	Connection  string `validate:"max=64"`
	Email       string `validate:"omitempty,email"`
}

// SetDefaults applies Global fallbacks and the UTF-8 default encoding.
func (h *Hub) SetDefaults(g *Global) {
	if h.Encoding == "" {
		h.Encoding = "UTF-8"
	}
	if h.Nick == "" {
		h.Nick = g.Nick
	}
	if h.Description == "" {
		h.Description = g.Description
	}
	if h.Connection == "" {
		h.Connection = g.Connection
	}
	if h.Email == "" {
		h.Email = g.Email
	}
}

// Validate checks the per-hub settings.
func (h *Hub) Validate() error {
	return validate.Struct(h)
}

// ParseHubAddr parses a hub connection string into a *Hub.
//
// Supported forms:
//
//	dchub://host[:port]          legacy protocol, no TLS
//	adc://host[:port]            modern protocol, no TLS
//	adcs://host[:port]           modern protocol, TLS required
func ParseHubAddr(connStr string) (*Hub, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid hub address: %w", err)
	}

	h := &Hub{}
	switch strings.ToLower(u.Scheme) {
	case "dchub":
		h.UseTLS = false
	case "adc":
		h.UseTLS = false
	case "adcs":
		h.UseTLS = true
	default:
		return nil, fmt.Errorf("unsupported hub scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("hub address missing host: %q", connStr)
	}

	port := u.Port()
	if port == "" {
		port = "411"
	} else if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("invalid port in hub address: %w", err)
	}

	h.Addr = host + ":" + port
	return h, nil
}

// DialTimeout is the timeout applied to every outbound connect, shared
// between hub sessions and C↔C sessions.
const DialTimeout = 30 * time.Second
