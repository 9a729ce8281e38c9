package bootstrap

import (
	"context"
	"fmt"
)

// Hook runs once at a lifecycle point of the App.
type Hook func(ctx context.Context) error

// OnReady adds hooks that run after the model is loaded and the port is
// open. A failing hook stops the App.
func (a *App) OnReady(hooks ...Hook) {
	a.onReady = append(a.onReady, hooks...)
}

// OnStop adds hooks that run at shutdown, before the listener closes and
// the model is released.
func (a *App) OnStop(hooks ...Hook) {
	a.onStop = append(a.onStop, hooks...)
}

func runHooks(ctx context.Context, hooks []Hook) error {
	for i, h := range hooks {
		if err := h(ctx); err != nil {
			return fmt.Errorf("hook %d: %w", i, err)
		}
	}
	return nil
}
