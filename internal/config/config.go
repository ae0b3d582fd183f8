// Package config holds the configuration for the server and client
// binaries. cmd/* fill these from flags or interactive prompts; the app
// layer turns them into handshake capabilities and peer options.
package config

import (
	"fmt"
	"time"

	"github.com/MigueldsBatista/projeto-redes/internal/protocol"
)

// Transport names selectable on both binaries.
const (
	TransportTCP    = "tcp"
	TransportWS     = "ws"
	TransportWebRTC = "webrtc"
)

// Protocol defaults.
const (
	DefaultAddr = "127.0.0.1:5000"

	DefaultMaxSize       = 1024
	DefaultWindow        = 4
	DefaultMaxWindow     = 10
	DefaultRetryTimeout  = time.Second
	DefaultMaxRetries    = 5
	DefaultDisconnectTTL = 2 * time.Second
	DefaultCorruptLimit  = 10
)

// ServerConfig parameterizes RunServer.
type ServerConfig struct {
	Addr      string
	Transport string

	MaxSize       int // fragment size cap granted to clients
	MaxWindow     int // largest window granted to clients
	DefaultWindow int // window assigned when the client names none

	RetryTimeout   time.Duration
	MaxRetries     int
	DisconnectWait time.Duration
	CorruptLimit   int

	Debug bool
}

// ClientConfig parameterizes RunClient.
type ClientConfig struct {
	Addr      string
	Transport string
	Pin       string // webrtc only: the PIN printed by the server

	Mode     string // protocol.ModeBurst or protocol.ModeStepByStep
	Protocol string // protocol.ProtoGBN or protocol.ProtoSR
	MaxSize  int    // requested fragment size
	Window   int    // requested window, clamped by the server
	ClientID string

	RetryTimeout   time.Duration
	MaxRetries     int
	DisconnectWait time.Duration
	CorruptLimit   int

	Debug bool
}

// DefaultServer returns a ServerConfig with stock values.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Addr:           DefaultAddr,
		Transport:      TransportTCP,
		MaxSize:        DefaultMaxSize,
		MaxWindow:      DefaultMaxWindow,
		DefaultWindow:  DefaultWindow,
		RetryTimeout:   DefaultRetryTimeout,
		MaxRetries:     DefaultMaxRetries,
		DisconnectWait: DefaultDisconnectTTL,
		CorruptLimit:   DefaultCorruptLimit,
	}
}

// DefaultClient returns a ClientConfig with stock values.
func DefaultClient() ClientConfig {
	return ClientConfig{
		Addr:           DefaultAddr,
		Transport:      TransportTCP,
		Mode:           protocol.ModeBurst,
		Protocol:       protocol.ProtoGBN,
		MaxSize:        DefaultMaxSize,
		Window:         DefaultWindow,
		RetryTimeout:   DefaultRetryTimeout,
		MaxRetries:     DefaultMaxRetries,
		DisconnectWait: DefaultDisconnectTTL,
		CorruptLimit:   DefaultCorruptLimit,
	}
}

func validTransport(t string) bool {
	switch t {
	case TransportTCP, TransportWS, TransportWebRTC:
		return true
	}
	return false
}

// Validate reports the first invalid field.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("missing listen address")
	}
	if !validTransport(c.Transport) {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("max_size must be at least 1, got %d", c.MaxSize)
	}
	if c.MaxWindow < 1 || c.DefaultWindow < 1 || c.DefaultWindow > c.MaxWindow {
		return fmt.Errorf("invalid window bounds: default %d, max %d", c.DefaultWindow, c.MaxWindow)
	}
	if c.RetryTimeout <= 0 || c.MaxRetries < 0 {
		return fmt.Errorf("invalid retry policy: timeout %s, retries %d", c.RetryTimeout, c.MaxRetries)
	}
	if c.CorruptLimit < 1 {
		return fmt.Errorf("corrupt limit must be at least 1, got %d", c.CorruptLimit)
	}
	return nil
}

// Validate reports the first invalid field.
func (c ClientConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("missing server address")
	}
	if !validTransport(c.Transport) {
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Transport == TransportWebRTC && c.Pin == "" {
		return fmt.Errorf("webrtc transport requires the server pin")
	}
	switch c.Mode {
	case protocol.ModeBurst, protocol.ModeStepByStep:
	default:
		return fmt.Errorf("unknown operation mode %q", c.Mode)
	}
	switch c.Protocol {
	case protocol.ProtoGBN, protocol.ProtoSR:
	default:
		return fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("max_size must be at least 1, got %d", c.MaxSize)
	}
	if c.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", c.Window)
	}
	if c.RetryTimeout <= 0 || c.MaxRetries < 0 {
		return fmt.Errorf("invalid retry policy: timeout %s, retries %d", c.RetryTimeout, c.MaxRetries)
	}
	if c.CorruptLimit < 1 {
		return fmt.Errorf("corrupt limit must be at least 1, got %d", c.CorruptLimit)
	}
	return nil
}
