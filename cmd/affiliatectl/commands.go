package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"affiliate-tracking-system/internal/app"
	"affiliate-tracking-system/internal/config"
	"affiliate-tracking-system/internal/earnings"
	"affiliate-tracking-system/internal/kafka"
	"affiliate-tracking-system/internal/logger"
	"affiliate-tracking-system/internal/services"

	"github.com/spf13/cobra"
)

// newApp is swapped in tests to seed the store.
var newApp = app.New

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "affiliatectl",
		Short:         "Operate the affiliate tracking pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSyncCmd(),
		newResetTagsCmd(),
		newCreateTagCmd(),
		newDebugPurchasesCmd(),
		newEventsCmd(),
	)
	return root
}

// withApp builds the application from the environment, runs fn and
// releases every connection afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.LogLevel)
	log.SetOutput(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one purchase sync: attribute orders, persist, report conversions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Sync.Run(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), services.Summary(result))
				return err
			})
		},
	}
}

func newResetTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-tags",
		Short: "Return tags claimed past the reset window to the pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Pool.ResetOldUsedTags(ctx, a.Config.Countries)
				fmt.Fprintf(cmd.OutOrStdout(), "%d tags reset\n", n)
				return err
			})
		},
	}
}

func newCreateTagCmd() *cobra.Command {
	var country string
	cmd := &cobra.Command{
		Use:   "create-tag",
		Short: "Register a new tag with the affiliate network and add it to the pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				tag, err := a.Pool.Backfill(ctx, country)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", tag.Name, tag.Country)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&country, "country", services.DefaultCountry, "tag pool country")
	return cmd
}

func newDebugPurchasesCmd() *cobra.Command {
	var report string
	cmd := &cobra.Command{
		Use:   "debug-purchases",
		Short: "Print the purchases an earnings report would create, without saving them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if report == "" {
				return errors.New("--report is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				orders, err := earnings.NewSource(report).FetchOrders(ctx)
				if err != nil {
					return err
				}
				purchases, err := a.Sync.Preview(ctx, orders)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(purchases)
			})
		},
	}
	cmd.Flags().StringVar(&report, "report", "", "earnings report file (.html or .json) or URL")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail lead and conversion events from Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.KafkaBroker == "" {
				return errors.New("KAFKA_BROKER is not set")
			}
			log := logger.SetupLogger(cfg.LogLevel)
			log.SetOutput(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := kafka.NewConsumer(cfg.KafkaBroker, cfg.KafkaTopic, group, log)
			defer consumer.Close()

			out := cmd.OutOrStdout()
			return consumer.Tail(ctx, func(event kafka.Event) error {
				_, err := fmt.Fprintf(out, "%s %-16s %s %s\n",
					event.OccurredAt.Format(time.RFC3339), event.Type, event.ID, event.Payload)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "affiliatectl", "consumer group id")
	return cmd
}
