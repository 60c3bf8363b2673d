package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/igz0/resonite-online-checker-cli/internal/api"
	"github.com/igz0/resonite-online-checker-cli/internal/app"
	"github.com/igz0/resonite-online-checker-cli/internal/cache"
	"github.com/igz0/resonite-online-checker-cli/internal/channel"
	"github.com/igz0/resonite-online-checker-cli/internal/config"
	"github.com/igz0/resonite-online-checker-cli/internal/render"
	"github.com/igz0/resonite-online-checker-cli/internal/signalr"
	"github.com/igz0/resonite-online-checker-cli/internal/status"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stdin := bufio.NewReader(os.Stdin)
	identity, err := prompt(stdin, "Enter your ID: ")
	if err != nil {
		return err
	}
	password, err := prompt(stdin, "Enter your password: ")
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.APIURL, logger)
	cred, err := client.Login(ctx, identity, password)
	if err != nil {
		return err
	}
	logger.Info("logged in", zap.String("userId", cred.UserID))

	sessions := cache.New(client, logger)
	reconciler := status.NewReconciler(sessions, func(entries []status.Entry) {
		fmt.Println(render.Table(entries))
		fmt.Println("Press Enter to stop")
	})

	header := http.Header{}
	header.Set("Authorization", client.AuthorizationHeader())
	header.Set("UID", client.UID())
	conn := signalr.NewClient(cfg.HubURL, header, logger)

	manager := channel.NewManager(conn, sessions, reconciler, client,
		cfg.ConnectAttempts, cfg.RetryDelay, logger)

	stop := make(chan struct{})
	go func() {
		// Blocks until Enter; the process exits shortly after Run returns,
		// so an orphaned read here is harmless.
		_, _ = stdin.ReadString('\n')
		close(stop)
	}()
	fmt.Println("Press Enter to stop")

	return app.New(manager, sessions, cfg.RefreshInterval, logger).Run(ctx, stop)
}

func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
