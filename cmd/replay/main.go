package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"main/internal/audit"
	"main/internal/ledger"
)

func main() {
	dir := flag.String("dir", "", "Agent ledger directory to verify")
	initialCash := flag.String("initial-cash", "0", "Initial cash the ledger started with")
	verifyPrefixes := flag.Bool("verify-prefixes", false, "Replay every log prefix, not just the full log")
	auditPath := flag.String("audit", "", "Audit log to play back instead of verifying a ledger")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *auditPath != "" {
		if err := playAudit(ctx, *auditPath, *speed); err != nil {
			log.Fatalf("audit playback failed: %v", err)
		}
		return
	}
	if *dir == "" {
		log.Fatal("either -dir or -audit is required")
	}
	cash, err := decimal.NewFromString(*initialCash)
	if err != nil {
		log.Fatalf("invalid -initial-cash: %v", err)
	}
	if err := verifyLedger(*dir, cash, *verifyPrefixes); err != nil {
		log.Fatalf("verification failed: %v", err)
	}
	fmt.Println("ledger verified: replay matches snapshot")
}

// verifyLedger replays the journal from an empty book and checks the result
// against the persisted snapshot, byte for byte.
func verifyLedger(dir string, initialCash decimal.Decimal, prefixes bool) error {
	txs, err := ledger.ReadJournal(dir)
	if err != nil {
		return err
	}
	snap, err := ledger.ReadSnapshot(ledger.SnapshotPath(dir))
	if err != nil {
		return err
	}

	book, lastSeq, lastDate, err := ledger.Replay(initialCash, txs)
	if err != nil {
		return err
	}
	rebuilt := book.Snapshot(snap.Agent, lastSeq, lastDate)

	want, err := snap.Bytes()
	if err != nil {
		return err
	}
	got, err := rebuilt.Bytes()
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("replayed snapshot diverges:\n got: %s\nwant: %s", got, want)
	}

	if prefixes {
		for n := 0; n <= len(txs); n++ {
			if _, _, _, err := ledger.Replay(initialCash, txs[:n]); err != nil {
				return fmt.Errorf("prefix %d: %w", n, err)
			}
		}
		fmt.Printf("all %d prefixes replay cleanly\n", len(txs)+1)
	}
	return nil
}

func playAudit(ctx context.Context, path string, speed float64) error {
	playback, err := audit.NewPlayback(audit.PlaybackConfig{Path: path, Speed: speed})
	if err != nil {
		return err
	}
	return playback.Run(ctx, func(rec audit.Record) error {
		fmt.Printf("%s [%s] %s\n", rec.Timestamp, rec.Type, rec.Summary)
		return nil
	})
}
