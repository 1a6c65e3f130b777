package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goethite/gostint-tui/internal/mockbackend"
	"github.com/goethite/gostint-tui/internal/observability"
)

var (
	mockAddr  string
	mockToken string
	mockRoles []string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve an in-memory vault and gostint for demos",
	Long: `Serve the parts of the vault and gostint APIs that gostint-tui uses, from
memory, on one address. Jobs move queued -> running -> success each time
they are fetched.

Example:
  gostint-tui mock --addr 127.0.0.1:8300 &
  gostint-tui --gostint-url http://127.0.0.1:8300 --vault-url http://127.0.0.1:8300`,
	Args: cobra.NoArgs,
	RunE: runMock,
}

func init() {
	rootCmd.AddCommand(mockCmd)
	mockCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8300", "listen address")
	mockCmd.Flags().StringVar(&mockToken, "root-token", mockbackend.DefaultRootToken, "vault root token")
	mockCmd.Flags().StringSliceVar(&mockRoles, "roles", []string{"gostint-role"}, "AppRole names to accept")
}

func runMock(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := mockbackend.New(mockbackend.Options{
		RootToken:   mockToken,
		Roles:       mockRoles,
		AutoAdvance: true,
		Logger:      observability.CLILogger,
	})
	srv := &http.Server{
		Addr:              mockAddr,
		Handler:           backend.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.CLILogger.Info("Mock backend listening", zap.String("addr", mockAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	observability.CLILogger.Info("Shutting down mock backend")
	return srv.Shutdown(shutdownCtx)
}
