// Package app wires the components together and owns the run loop.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Channel is the lifecycle surface the run loop drives.
type Channel interface {
	Connect(ctx context.Context) error
	Done() <-chan error
	Stop(ctx context.Context)
}

// Refresher runs the periodic session snapshot refresh.
type Refresher interface {
	Run(ctx context.Context, interval time.Duration)
}

const stopTimeout = 10 * time.Second

type App struct {
	channel  Channel
	cache    Refresher
	interval time.Duration
	log      *zap.Logger
}

func New(channel Channel, cache Refresher, interval time.Duration, log *zap.Logger) *App {
	return &App{channel: channel, cache: cache, interval: interval, log: log}
}

// Run connects the channel, then supervises the refresh timer and the
// channel until stop fires, ctx ends, or the channel drops. Teardown order:
// refresh timer first, then channel close and logout via Stop.
func (a *App) Run(ctx context.Context, stop <-chan struct{}) error {
	if err := a.channel.Connect(ctx); err != nil {
		return err
	}

	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	defer cancelRefresh()

	var runErr error
	g := new(errgroup.Group)
	g.Go(func() error {
		a.cache.Run(refreshCtx, a.interval)
		return nil
	})
	g.Go(func() error {
		defer cancelRefresh()
		select {
		case <-ctx.Done():
		case <-stop:
			a.log.Info("shutdown requested")
		case err := <-a.channel.Done():
			if err != nil {
				runErr = fmt.Errorf("channel dropped: %w", err)
			}
		}
		return nil
	})
	_ = g.Wait()

	// In-flight calls may finish or fail on their own; teardown just gets a
	// bounded window.
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.channel.Stop(stopCtx)

	return runErr
}
