package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/linkaudit/clickaudit"
)

func newSnapshotCmd() *cobra.Command {
	var (
		req          clickaudit.SnapshotRequest
		waitMs       int
		viewportOnly bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Click one link and record where it leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("wait-ms") {
				req.SettleWaitMs = &waitMs
			}
			full := !viewportOnly
			req.FullPage = &full

			svc, _, _, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			snap, err := svc.CreateSnapshot(ctx, req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), snap); err != nil {
				return err
			}
			if !snap.Complete() {
				return fmt.Errorf("partial record %d: %s", snap.ID, snap.Failure)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.OriginURL, "url", "", "origin page URL")
	cmd.Flags().StringVar(&req.ClickType, "type", "text", "locator type: text, css, xpath, aria")
	cmd.Flags().StringVar(&req.ClickValue, "value", "", "locator value")
	cmd.Flags().IntVar(&waitMs, "wait-ms", 0, "settle wait after the click in milliseconds")
	cmd.Flags().BoolVar(&viewportOnly, "viewport-only", false, "capture the viewport instead of the full page")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func newGetCmd() *cobra.Command {
	var screenshot string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one audit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("id %q: %w", args[0], err)
			}
			svc, _, _, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx := cmd.Context()
			rec, err := svc.Get(ctx, id)
			if err != nil {
				return err
			}
			if screenshot != "" {
				png, err := svc.Screenshot(ctx, id)
				if err != nil {
					return err
				}
				if err := os.WriteFile(screenshot, png, 0o644); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&screenshot, "screenshot", "", "also write the PNG evidence to this file")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Per-day event and distinct-hash counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, _, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			stats, err := svc.DailyStats(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVar(&days, "days", 60, "window size in days")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		yesterday  bool
		day, month string
		fromTo     [2]string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List records of a day, a month or a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query, err := eventsQuery(yesterday, day, month, fromTo[0], fromTo[1])
			if err != nil {
				return err
			}
			svc, _, _, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			recs, err := query(cmd.Context(), svc)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().BoolVar(&yesterday, "yesterday", false, "records of the previous UTC day")
	cmd.Flags().StringVar(&day, "day", "", "records of one day, YYYY-MM-DD")
	cmd.Flags().StringVar(&month, "month", "", "records of one month, YYYY-MM")
	cmd.Flags().StringVar(&fromTo[0], "from", "", "range start, RFC 3339 or YYYY-MM-DDTHH:MM:SS")
	cmd.Flags().StringVar(&fromTo[1], "to", "", "range end, inclusive")
	cmd.MarkFlagsMutuallyExclusive("yesterday", "day", "month", "from")
	cmd.MarkFlagsRequiredTogether("from", "to")
	cmd.MarkFlagsOneRequired("yesterday", "day", "month", "from")
	return cmd
}

type eventsFunc func(context.Context, *clickaudit.Service) ([]clickaudit.Record, error)

// eventsQuery picks the query for the events flags. Arguments are checked
// before the service is opened.
func eventsQuery(yesterday bool, day, month, from, to string) (eventsFunc, error) {
	switch {
	case yesterday:
		return func(ctx context.Context, s *clickaudit.Service) ([]clickaudit.Record, error) {
			return s.EventsYesterday(ctx)
		}, nil
	case day != "":
		return func(ctx context.Context, s *clickaudit.Service) ([]clickaudit.Record, error) {
			return s.EventsByDay(ctx, day)
		}, nil
	case month != "":
		m, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, fmt.Errorf("--month %q: want YYYY-MM", month)
		}
		return func(ctx context.Context, s *clickaudit.Service) ([]clickaudit.Record, error) {
			return s.EventsByMonth(ctx, m.Year(), int(m.Month()))
		}, nil
	case from != "":
		start, err := clickaudit.ParseTime(from)
		if err != nil {
			return nil, err
		}
		end, err := clickaudit.ParseTime(to)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *clickaudit.Service) ([]clickaudit.Record, error) {
			return s.EventsByRange(ctx, start, end)
		}, nil
	}
	return nil, fmt.Errorf("one of --yesterday, --day, --month or --from/--to is required")
}
