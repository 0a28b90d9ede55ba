package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/atis-gateway/internal/app"
	"github.com/noah-isme/atis-gateway/internal/models"
	"github.com/noah-isme/atis-gateway/internal/upstream"
	"github.com/noah-isme/atis-gateway/pkg/config"
	"github.com/noah-isme/atis-gateway/pkg/logger"
)

const tokenEnv = "ATIS_TOKEN"

type globalFlags struct {
	token   string
	json    bool
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:          "atisctl",
		Short:        "Query ATIS lists and reports from the command line",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.token, "token", "", "Bearer token (defaults to $"+tokenEnv+")")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "Print JSON instead of a table")
	cmd.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "Log upstream requests to stderr")

	cmd.AddCommand(newListCmd(flags))
	cmd.AddCommand(newAttendanceCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	return cmd
}

// session is one authenticated CLI run.
type session struct {
	app       *app.App
	principal models.Principal
	ctx       context.Context
}

func openSession(ctx context.Context, flags *globalFlags) (*session, error) {
	token := flags.token
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return nil, fmt.Errorf("missing token: pass --token or set %s", tokenEnv)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logr := zap.NewNop()
	if flags.verbose {
		cfg.Log.DebugFetch = true
		if logr, err = logger.New(cfg); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	a, err := app.New(ctx, cfg, logr, app.Options{})
	if err != nil {
		return nil, err
	}
	principal, err := a.Auth.Authenticate(token)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return &session{
		app:       a,
		principal: *principal,
		ctx:       upstream.WithToken(ctx, principal.Token),
	}, nil
}

func (s *session) Close() {
	_ = s.app.Close()
	_ = s.app.Logger.Sync()
}
