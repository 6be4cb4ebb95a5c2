package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"main/internal/ledger"
	"main/internal/oracle"
	"main/internal/report"
)

func main() {
	dir := flag.String("dir", "", "Agent ledger directory")
	dataDir := flag.String("data-dir", "", "Price dataset directory")
	agent := flag.String("agent", "", "Agent name (default: snapshot owner)")
	initialCash := flag.String("initial-cash", "0", "Initial cash the run started with")
	out := flag.String("out", "", "Output directory (default: the ledger directory)")
	flag.Parse()

	if *dir == "" || *dataDir == "" {
		log.Fatal("-dir and -data-dir are required")
	}
	cash, err := decimal.NewFromString(*initialCash)
	if err != nil {
		log.Fatalf("invalid -initial-cash: %v", err)
	}

	txs, err := ledger.ReadJournal(*dir)
	if err != nil {
		log.Fatalf("read journal: %v", err)
	}
	name := *agent
	if name == "" {
		snap, err := ledger.ReadSnapshot(ledger.SnapshotPath(*dir))
		if err != nil {
			log.Fatalf("read snapshot: %v", err)
		}
		name = snap.Agent
	}
	store, err := oracle.Load(*dataDir)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}

	summary, err := report.Build(name, "", cash, txs, store, report.Sessions(txs))
	if err != nil {
		log.Fatalf("build report: %v", err)
	}
	outDir := *out
	if outDir == "" {
		outDir = *dir
	}
	path, err := report.Write(outDir, summary)
	if err != nil {
		log.Fatalf("write report: %v", err)
	}
	fmt.Printf("report written to %s\n", path)
}
