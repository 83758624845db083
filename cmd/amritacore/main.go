// Package main provides a minimal CLI for exercising the Amrita agent
// runtime: load a preset, run one chat turn, stream the answer to stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amrita-ai/amritacore"
	"github.com/amrita-ai/amritacore/internal/presets"
	"github.com/amrita-ai/amritacore/pkg/models"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "amritacore",
		Short:         "Amrita agent runtime demo CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChatCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "amritacore %s (%s)\n", version, commit)
		},
	}
}

func newChatCmd() *cobra.Command {
	var presetPath string
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one chat turn against a preset, streaming the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, presetPath, sessionID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&presetPath, "preset", "p", "preset.json", "path to a preset file (.json or .yaml)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to continue (created when empty)")
	return cmd
}

func runChat(ctx context.Context, presetPath, sessionID, message string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	preset, err := loadPreset(presetPath)
	if err != nil {
		return err
	}

	rt := amritacore.NewRuntime(logger, nil)
	rt.Init()
	rt.SetConfig(models.DefaultAmritaConfig())
	if err := rt.LoadAmrita(ctx); err != nil {
		return err
	}
	rt.Presets.Add(preset)
	if err := rt.Presets.SetDefault(preset.Name); err != nil {
		return err
	}

	turn, err := rt.ChatTurn(ctx, amritacore.Params{
		SessionID:         sessionID,
		UserInput:         message,
		AutoCreateSession: true,
		Callback: func(chunk string) error {
			_, werr := fmt.Fprint(os.Stdout, chunk)
			return werr
		},
	})
	if err != nil {
		return err
	}
	if err := turn.Begin(ctx); err != nil {
		return err
	}
	if err := turn.Wait(ctx); err != nil {
		return err
	}

	result := turn.Result()
	if !preset.Config.Stream {
		fmt.Fprint(os.Stdout, result.Content)
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintf(os.Stderr, "session=%s tokens~%d iterations=%d\n",
		turn.SessionID(), rt.CountTokens(result.Content), turn.Stats().Iterations)
	return nil
}

func loadPreset(path string) (models.ModelPreset, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return presets.LoadYAML(path)
	}
	return presets.Load(path)
}
