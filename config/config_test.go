package config

import "testing"

func TestGlobalSetDefaults(t *testing.T) {
	g := &Global{Nick: "me"}
	g.SetDefaults()

	if g.Slots != 3 {
		t.Errorf("Slots = %d, want 3", g.Slots)
	}
	if g.Connection != "LAN(T3)" {
		t.Errorf("Connection = %q, want LAN(T3)", g.Connection)
	}
	if g.TLSPolicy != TLSPrefer {
		t.Errorf("TLSPolicy = %q, want %q", g.TLSPolicy, TLSPrefer)
	}
}

func TestGlobalValidate(t *testing.T) {
	tests := []struct {
		name    string
		global  Global
		wantErr bool
	}{
		{name: "missing nick fails", global: Global{}, wantErr: true},
		{name: "valid minimal config passes", global: Global{Nick: "me", Slots: 3}, wantErr: false},
		{name: "bad email fails", global: Global{Nick: "me", Email: "not-an-email"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.global.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHubAddr(t *testing.T) {
	tests := []struct {
		name     string
		connStr  string
		wantAddr string
		wantTLS  bool
		wantErr  bool
	}{
		{name: "legacy default port", connStr: "dchub://hub.example.com", wantAddr: "hub.example.com:411", wantTLS: false},
		{name: "modern explicit port", connStr: "adc://hub.example.com:1511", wantAddr: "hub.example.com:1511", wantTLS: false},
		{name: "modern tls", connStr: "adcs://hub.example.com:1511", wantAddr: "hub.example.com:1511", wantTLS: true},
		{name: "unsupported scheme", connStr: "http://hub.example.com", wantErr: true},
		{name: "missing host", connStr: "dchub://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHubAddr(tt.connStr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHubAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if h.Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", h.Addr, tt.wantAddr)
			}
			if h.UseTLS != tt.wantTLS {
				t.Errorf("UseTLS = %v, want %v", h.UseTLS, tt.wantTLS)
			}
		})
	}
}

func TestHubSetDefaults(t *testing.T) {
	g := &Global{Nick: "me", Description: "hi", Connection: "LAN(T3)", Email: "me@example.com"}
	h := &Hub{Addr: "hub:411"}
	h.SetDefaults(g)

	if h.Encoding != "UTF-8" {
		t.Errorf("Encoding = %q, want UTF-8", h.Encoding)
	}
	if h.Nick != "me" {
		t.Errorf("Nick = %q, want me", h.Nick)
	}
	if h.Description != "hi" {
		t.Errorf("Description = %q, want hi", h.Description)
	}
}
