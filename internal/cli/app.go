// Package cli is the terminal front end for account management. It drives a
// session.Manager against either identity provider.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"prediction-platform/internal/config"
	"prediction-platform/internal/identity"
	"prediction-platform/internal/identity/rest"
	"prediction-platform/internal/identity/supabase"
	"prediction-platform/internal/logger"
	"prediction-platform/internal/session"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisSessionName = "default"

type App struct {
	manager *session.Manager
	reader  *bufio.Reader
	out     io.Writer
	closers []func()
}

// NewApp builds the provider and session store named by cfg.
func NewApp(ctx context.Context, cfg *config.ClientConfig) (*App, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{reader: bufio.NewReader(os.Stdin), out: os.Stdout}

	store, err := app.newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app.manager = session.NewManager(provider, store, session.Options{ResetRedirect: cfg.ResetRedirect})
	return app, nil
}

// NewAppWithManager wires an App around an existing manager.
func NewAppWithManager(manager *session.Manager, in io.Reader, out io.Writer) *App {
	return &App{manager: manager, reader: bufio.NewReader(in), out: out}
}

func newProvider(cfg *config.ClientConfig) (identity.Provider, error) {
	switch cfg.Provider {
	case "", "rest":
		return rest.New(cfg.APIURL, cfg.RequestTimeout), nil
	case "supabase":
		if cfg.Supabase.URL == "" || cfg.Supabase.AnonKey == "" {
			return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase provider")
		}
		return supabase.New(cfg.Supabase.URL, cfg.Supabase.AnonKey, cfg.RequestTimeout), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func (a *App) newStore(ctx context.Context, cfg *config.ClientConfig) (session.Store, error) {
	switch cfg.SessionStore {
	case "", "file":
		return session.NewFileStore(cfg.SessionFile), nil
	case "memory":
		return session.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return session.NewRedisStore(client, redisSessionName, 0), nil
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
}

func (a *App) Close() {
	a.manager.Close()
	for _, c := range a.closers {
		c()
	}
}

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.out, "Unknown command %q\n\n", args[0])
		a.usage()
		return 2
	}

	events, unsubscribe := a.manager.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			fields := []zap.Field{zap.String("event", string(ev.Type))}
			if ev.User != nil {
				fields = append(fields, zap.String("user_id", ev.User.ID))
			}
			logger.Debug("Session event", fields...)
		}
	}()

	if _, err := a.manager.RestoreSession(ctx); err != nil {
		logger.Debug("Session restore failed", zap.Error(err))
	}

	if err := cmd.run(a, ctx); err != nil {
		fmt.Fprintln(a.out, "Error: "+session.FormatError(err))
		return 1
	}
	return 0
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: client <command>")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(a.out, "  %-16s %s\n", name, commands[name].help)
	}
}
