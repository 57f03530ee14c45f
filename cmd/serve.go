package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/uteqlabs/wabridge/internal/bus"
	"github.com/uteqlabs/wabridge/internal/config"
	"github.com/uteqlabs/wabridge/internal/dispatch"
	"github.com/uteqlabs/wabridge/internal/engine"
	"github.com/uteqlabs/wabridge/internal/gateway"
	"github.com/uteqlabs/wabridge/internal/httpapi"
	"github.com/uteqlabs/wabridge/internal/session"
)

func serveCmd() *cobra.Command {
	var noQRTerminal bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			config.SetupLogging(cfg)
			if err := runServe(cfg, !noQRTerminal); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&noQRTerminal, "no-qr-terminal", false, "do not render pairing codes in the terminal")
	return cmd
}

func runServe(cfg *config.Config, qrInTerminal bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore()
	b := bus.New()

	eng, err := engine.NewMeow(ctx, cfg.DataDir, b, cfg.Verbose)
	if err != nil {
		return fmt.Errorf("start whatsapp engine: %w", err)
	}
	defer eng.Close()

	disp := dispatch.New(store, eng, time.Duration(cfg.SendTimeout), cfg.SendRate)

	// Sole writer: every lifecycle event funnels through this loop, so the
	// store never sees concurrent writes and broadcasts stay ordered.
	go func() {
		for {
			ev, ok := b.Consume(ctx)
			if !ok {
				return
			}
			if snap, changed := store.Apply(ev); changed {
				b.Broadcast(snap)
			}
		}
	}()

	if qrInTerminal {
		b.Subscribe("console-qr", func(snap session.Snapshot) {
			if snap.State == session.StateQR && snap.Pairing != nil {
				fmt.Fprintln(os.Stdout, "Scan with WhatsApp on your phone:")
				qrterminal.GenerateHalfBlock(snap.Pairing.Code, qrterminal.L, os.Stdout)
			}
		})
	}

	ws := gateway.NewServer(store, b)
	mux := http.NewServeMux()
	httpapi.New(store, eng, disp, b).Register(mux)
	mux.Handle("/ws", ws)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.CORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Pacing settings can be tuned without a restart.
	if watcher, err := config.NewWatcher(resolveConfigPath()); err == nil {
		watcher.OnChange(func(next *config.Config) {
			disp.SetPacing(time.Duration(next.SendTimeout), next.SendRate)
			slog.Info("send pacing updated", "timeout", time.Duration(next.SendTimeout), "rate", next.SendRate)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watch unavailable", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if err := eng.Connect(ctx); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("bridge listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	eng.Disconnect()
	return nil
}
