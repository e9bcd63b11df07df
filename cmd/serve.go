package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-auth/internal/camera"
	"github.com/kozaktomas/face-auth/internal/capture"
	"github.com/kozaktomas/face-auth/internal/session"
	"github.com/kozaktomas/face-auth/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the camera and start the web UI",
	Long: `Open the camera and start the web server.
The browser UI shows the annotated preview, registers the face in front of
the camera under a name, and authenticates people in recognition mode.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("camera", "", "Camera index, device path or stream URL (overrides CAMERA_DEVICE)")
	serveCmd.Flags().String("mode", "registration", "Initial mode: registration or recognition")
	serveCmd.Flags().Bool("no-camera", false, "Do not open the camera until requested from the UI")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if device := mustGetString(cmd, "camera"); device != "" {
		cfg.Camera.Device = device
	}
	initialMode, err := capture.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store := openStore(cfg, logger)
	logger.Info("loaded enrolled faces", zap.Int("count", store.Len()), zap.String("dir", store.Dir()))

	detector, err := camera.NewDetector(cfg.Detector, logger)
	if err != nil {
		return fmt.Errorf("initializing face detector: %w", err)
	}
	defer detector.Close()

	mode := session.NewModeSwitch(initialMode)
	loop := capture.NewLoop(
		camera.NewSource(cfg.Camera.Device, logger),
		detector,
		store,
		newMatcher(cfg, logger),
		logger,
		capture.Options{
			Cooldown:      cfg.Capture.RecognitionCooldown(),
			FrameInterval: cfg.Capture.FrameInterval(),
			Mode:          mode.Get,
		},
	)
	ctl := session.New(loop, store, mode, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		ctl.Run(ctx)
		close(runDone)
	}()

	if !mustGetBool(cmd, "no-camera") {
		if err := ctl.StartCamera(); err != nil && !errors.Is(err, capture.ErrDeviceUnavailable) {
			return fmt.Errorf("starting camera: %w", err)
		}
	}

	server := web.NewServer(cfg, ctl, store, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		// Closing the session ends the event streams so the server can drain.
		ctl.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Auth on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		ctl.Shutdown()
		return fmt.Errorf("starting server: %w", err)
	}
	<-runDone
	return nil
}
