package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mossy-p/telecare-signaling/config"
	"github.com/mossy-p/telecare-signaling/internal/booking"
	"github.com/mossy-p/telecare-signaling/internal/logging"
	"github.com/mossy-p/telecare-signaling/internal/media"
	"github.com/mossy-p/telecare-signaling/internal/session"
	"github.com/mossy-p/telecare-signaling/internal/signalclient"
	"github.com/mossy-p/telecare-signaling/internal/ui"
)

var (
	flagName     string
	flagConfig   string
	flagServer   string
	flagBooking  string
	flagToken    string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagCamera   string
	flagMic      string
	flagScreen   string
	flagLogFile  string
)

var joinCmd = &cobra.Command{
	Use:   "join <appointmentId>",
	Short: "Join the consultation room of an appointment",
	Long: `Join the consultation room of an appointment. The appointment id is the
room id. Ending the call marks the appointment complete.

Examples:
  consult join 64f1c2e8a1b2c3d4e5f60718 --name "Dr Who" --camera cam.ivf --mic mic.ogg
  consult join 64f1c2e8a1b2c3d4e5f60718 --screen slides.ivf --config consult.toml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinCall(cmd.Context(), args[0])
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVarP(&flagName, "name", "n", "", "display name (asked for when empty)")
	f.StringVarP(&flagConfig, "config", "c", "", "TOML config file (default consult.toml)")
	f.StringVar(&flagServer, "server", "", "signaling websocket URL")
	f.StringVar(&flagBooking, "booking", "", "booking API base URL")
	f.StringVar(&flagToken, "token", "", "booking API bearer token")
	f.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	f.StringVar(&flagTURN, "turn", "", "TURN server URL")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.StringVar(&flagCamera, "camera", "", "IVF file played as the camera")
	f.StringVar(&flagMic, "mic", "", "Ogg/Opus file played as the microphone")
	f.StringVar(&flagScreen, "screen", "", "IVF file shared as the screen")
	f.StringVar(&flagLogFile, "log-file", "", "write logs to this file instead of discarding them")

	rootCmd.AddCommand(joinCmd)
}

func joinCall(parent context.Context, appointmentID string) error {
	cfg, err := config.LoadClient(config.ClientOptions{
		ConfigFile:     flagConfig,
		SignalingURL:   flagServer,
		BookingURL:     flagBooking,
		BookingToken:   flagToken,
		STUNServer:     flagSTUN,
		TURNServer:     flagTURN,
		TURNUser:       flagTURNUser,
		TURNPass:       flagTURNPass,
		CameraFile:     flagCamera,
		MicrophoneFile: flagMic,
		ScreenFile:     flagScreen,
	})
	if err != nil {
		return err
	}

	logger, closeLog, err := clientLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sig, err := signalclient.Dial(ctx, cfg.SignalingURL, logger)
	if err != nil {
		return fmt.Errorf("signaling server %s: %w", cfg.SignalingURL, err)
	}

	var completer booking.Completer
	if cfg.BookingURL != "" {
		completer = booking.NewHTTPCompleter(cfg.BookingURL, cfg.BookingToken)
	}

	s := session.New(session.Config{
		Signaler: sig,
		Transports: &session.PionFactory{
			STUNServers: cfg.GetSTUNServers(),
			TURNServers: cfg.GetTURNServers(),
			TURNUser:    cfg.TURNUser,
			TURNPass:    cfg.TURNPass,
			Log:         logger,
		},
		Devices: &media.FileDevices{
			CameraFile:     cfg.CameraFile,
			MicrophoneFile: cfg.MicrophoneFile,
			ScreenFile:     cfg.ScreenFile,
			Log:            logger,
		},
		Completer: completer,
		Logger:    logger,
	})
	defer s.Close()

	p := tea.NewProgram(ui.New(ctx, s, appointmentID, flagName), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := s.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		p.Send(ui.DisconnectedMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(ui.Model); ok && m.Err() != nil {
		return m.Err()
	}
	if s.State() == session.StateEnded {
		fmt.Println("Consultation ended.")
	}
	return nil
}

// clientLogger keeps logs off the terminal the call screen draws on
func clientLogger() (zerolog.Logger, func(), error) {
	logger := logging.Init(zerolog.ErrorLevel)
	if flagLogFile == "" {
		return zerolog.Nop(), func() {}, nil
	}
	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return logger, nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.Output(f), func() { f.Close() }, nil
}
