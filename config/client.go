package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Client defaults
const (
	DefaultSignalingURL = "ws://localhost:8080/ws/signal"
	DefaultBookingURL   = "http://localhost:5000"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultConfigFile   = "consult.toml"
)

// ClientConfig holds everything a participant needs to join a consultation
type ClientConfig struct {
	SignalingURL string `toml:"signaling_url"`
	BookingURL   string `toml:"booking_url"`
	BookingToken string `toml:"booking_token"`

	STUNServer string `toml:"stun_server"`
	TURNServer string `toml:"turn_server"`
	TURNUser   string `toml:"turn_username"`
	TURNPass   string `toml:"turn_password"`

	CameraFile     string `toml:"camera_file"`
	MicrophoneFile string `toml:"microphone_file"`
	ScreenFile     string `toml:"screen_file"`
}

// ClientOptions carries CLI flag overrides. Empty fields are ignored.
type ClientOptions struct {
	ConfigFile     string
	SignalingURL   string
	BookingURL     string
	BookingToken   string
	STUNServer     string
	TURNServer     string
	TURNUser       string
	TURNPass       string
	CameraFile     string
	MicrophoneFile string
	ScreenFile     string
}

// LoadClient reads client configuration with the following priority:
// 1. CLI flags (passed via ClientOptions) - highest priority
// 2. Environment variables
// 3. TOML config file
// 4. Hardcoded defaults - lowest priority
func LoadClient(opts ClientOptions) (*ClientConfig, error) {
	cfg := &ClientConfig{
		SignalingURL: DefaultSignalingURL,
		BookingURL:   DefaultBookingURL,
		STUNServer:   DefaultSTUN,
	}

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		// A missing default file just means defaults
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	layer(&cfg.SignalingURL, opts.SignalingURL, "SIGNALING_URL")
	layer(&cfg.BookingURL, opts.BookingURL, "BOOKING_URL")
	layer(&cfg.BookingToken, opts.BookingToken, "BOOKING_TOKEN")
	layer(&cfg.STUNServer, opts.STUNServer, "STUN_SERVER")
	layer(&cfg.TURNServer, opts.TURNServer, "TURN_SERVER")
	layer(&cfg.TURNUser, opts.TURNUser, "TURN_USERNAME")
	layer(&cfg.TURNPass, opts.TURNPass, "TURN_PASSWORD")
	layer(&cfg.CameraFile, opts.CameraFile, "CAMERA_FILE")
	layer(&cfg.MicrophoneFile, opts.MicrophoneFile, "MICROPHONE_FILE")
	layer(&cfg.ScreenFile, opts.ScreenFile, "SCREEN_FILE")

	if cfg.SignalingURL == "" {
		return nil, errors.New("signaling URL is required")
	}
	return cfg, nil
}

func layer(dst *string, flag, env string) {
	if flag != "" {
		*dst = flag
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// GetSTUNServers returns STUN server URLs
func (c *ClientConfig) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *ClientConfig) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{c.TURNServer}
}
