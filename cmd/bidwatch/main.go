// Command bidwatch follows a live auction from the terminal and places bids against an Atelier server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"atelier/pkg/tracker"
)

var (
	serverURL string
	token     string
	timeout   time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bidwatch",
		Short:        "Follow and bid on Atelier auctions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("ATELIER_SERVER", "http://localhost:8080"), "Atelier server base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("ATELIER_TOKEN"), "session token for bidding")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for a bid to resolve")

	root.AddCommand(watchCmd(), bidCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newTracker() *tracker.Tracker {
	return tracker.New(
		tracker.NewHTTPBidStore(serverURL, token),
		tracker.NewWSFeed(serverURL, token),
		tracker.WithSubmitTimeout(timeout),
	)
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <artwork_id>",
		Short: "Print the auction state as bids arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			view, err := newTracker().Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			out := cmd.OutOrStdout()
			printState(cmd, view.State())

			countdown := view.Countdown()
			tickCtx, stopTicks := context.WithCancel(ctx)
			defer func() { stopTicks() }()
			ticks := countdown.Start(tickCtx, time.Second)
			for {
				select {
				case <-ctx.Done():
					return nil
				case st, ok := <-view.Updates():
					if !ok {
						return nil
					}
					printState(cmd, st)
					if c := view.Countdown(); c != countdown {
						stopTicks()
						countdown = c
						tickCtx, stopTicks = context.WithCancel(ctx)
						ticks = countdown.Start(tickCtx, time.Second)
					}
				case tick, ok := <-ticks:
					if !ok {
						ticks = nil
						continue
					}
					fmt.Fprintf(out, "\r%s  ", tick.Display)
					if tick.Status == tracker.Expired {
						fmt.Fprintln(out, "\nauction ended")
					}
				case err, ok := <-view.Errors():
					if !ok {
						return nil
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "\nfeed: %v\n", err)
				}
			}
		},
	}
}

func bidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bid <artwork_id> <amount>",
		Short: "Place a bid at the given amount",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("a session token is required to bid (--token or ATELIER_TOKEN)")
			}
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			view, err := newTracker().Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer view.Close()

			st, err := view.Submit(ctx, amount)
			if err != nil {
				printState(cmd, view.State())
				if tracker.IsRetryable(err) {
					return fmt.Errorf("%w (try again, suggested next bid %s)", err, view.State().SuggestedNextBid.StringFixed(2))
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "bid accepted")
			printState(cmd, st)
			return nil
		},
	}
}

func printState(cmd *cobra.Command, st tracker.State) {
	leader := "none"
	if st.HighestBidderID != nil {
		leader = *st.HighestBidderID
	}
	feed := "live"
	if !st.Live {
		feed = "offline"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\rcurrent %s  next %s  bids %d  leader %s  [%s]\n",
		st.CurrentBid.StringFixed(2), st.SuggestedNextBid.StringFixed(2), st.BidCount, leader, feed)
}
