// Command console-sweeper force-ends impersonation sessions that have
// outlived their time box, and appends one ledger entry per swept session.
// Run it on a schedule next to the console:
//
//	console-sweeper -dsn "$PG_DSN" -interval 1m
//
// With -once it sweeps a single time and exits, which suits cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venn-labs/platauth"
	"github.com/venn-labs/platauth/pgstore"
)

func main() {
	var (
		dsn      = flag.String("dsn", os.Getenv("PG_DSN"), "postgres dsn (defaults to PG_DSN)")
		interval = flag.Duration("interval", time.Minute, "time between sweeps")
		once     = flag.Bool("once", false, "sweep once and exit")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "a postgres dsn is required")
		os.Exit(2)
	}
	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "interval must be > 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := pgstore.Open(ctx, *dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := sweep(ctx, store); err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
	if *once {
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx, store); err != nil {
				fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
			}
		}
	}
}

// sweep ends expired sessions and records each one in the audit ledger.
// A ledger failure aborts before further sessions are reported swept.
func sweep(ctx context.Context, store *pgstore.Store) error {
	swept, err := store.SweepExpired(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, sess := range swept {
		entry := platauth.NewAuditEntry("impersonation.expired", sess.PlatformAccountID)
		entry.TargetTenantID = sess.TenantID
		entry.TargetUserID = sess.TargetUserID
		entry.Metadata = map[string]string{
			"impersonation_id": sess.ID,
			"end_reason":       platauth.EndReasonTimedOut,
		}
		if err := store.Append(ctx, entry); err != nil {
			return fmt.Errorf("ledger write for %s: %w", sess.ID, err)
		}
		fmt.Printf("ended expired impersonation %s (actor=%s tenant=%s user=%s)\n",
			sess.ID, sess.PlatformAccountID, sess.TenantID, sess.TargetUserID)
	}
	if len(swept) == 0 {
		fmt.Println("nothing to sweep")
	}
	return nil
}
