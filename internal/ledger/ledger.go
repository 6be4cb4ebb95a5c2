package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/rules"
	"main/internal/schema"
)

const (
	journalFile  = "transactions.jsonl"
	snapshotFile = "snapshot.json"
	lockFile     = "ledger.lock"
)

// JournalPath returns the transaction log path inside a ledger directory.
func JournalPath(dir string) string {
	return filepath.Join(dir, journalFile)
}

// SnapshotPath returns the snapshot path inside a ledger directory.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, snapshotFile)
}

// ReadJournal reads a ledger directory's full transaction log.
func ReadJournal(dir string) ([]schema.Transaction, error) {
	return readTransactions(JournalPath(dir))
}

// Config describes one agent's ledger.
type Config struct {
	Dir         string
	Agent       string
	InitialCash decimal.Decimal
	LockTimeout time.Duration
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid ledger config: Dir is empty")
	}
	if c.Agent == "" {
		return fmt.Errorf("invalid ledger config: Agent is empty")
	}
	if c.InitialCash.IsNegative() {
		return fmt.Errorf("invalid ledger config: InitialCash must be >= 0")
	}
	return nil
}

// Ledger owns one agent's durable cash/position state. Exactly one process
// may own a ledger directory for a run; the advisory lock additionally
// serializes each apply against any other handle on the same files.
type Ledger struct {
	cfg       Config
	validator *rules.Validator

	book     *Book
	lastSeq  uint64
	lastDate string
}

// Open loads or creates the agent's ledger: latest snapshot first, then any
// trailing journal records past it, rebuilding exact state.
func Open(cfg Config, validator *rules.Validator) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if validator == nil {
		return nil, fmt.Errorf("ledger validator is nil")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	l := &Ledger{cfg: cfg, validator: validator, book: NewBook(cfg.InitialCash)}

	snap, err := ReadSnapshot(SnapshotPath(cfg.Dir))
	switch {
	case err == nil:
		if snap.Agent != cfg.Agent {
			return nil, fmt.Errorf("%w: snapshot belongs to %q, not %q", ErrCorrupted, snap.Agent, cfg.Agent)
		}
		book, err := BookFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		l.book = book
		l.lastSeq = snap.LastSeq
		l.lastDate = snap.LastDate
	case os.IsNotExist(err):
		// fresh ledger, or journal-only after a crash between append and
		// snapshot rewrite; tail replay below covers both
	default:
		return nil, err
	}

	if err := l.sync(); err != nil {
		return nil, err
	}
	return l, nil
}

// sync replays journal records the in-memory book has not seen yet.
func (l *Ledger) sync() error {
	tail, err := readTransactionsAfter(JournalPath(l.cfg.Dir), l.lastSeq)
	if err != nil {
		return err
	}
	if len(tail) == 0 {
		return nil
	}
	seq, date, err := ReplayOnto(l.book, l.lastSeq, tail)
	if err != nil {
		return err
	}
	l.lastSeq = seq
	l.lastDate = date
	return nil
}

// Agent returns the owning agent's signature.
func (l *Ledger) Agent() string {
	return l.cfg.Agent
}

// Snapshot materializes the current in-memory state.
func (l *Ledger) Snapshot() Snapshot {
	return l.book.Snapshot(l.cfg.Agent, l.lastSeq, l.lastDate)
}

// View returns a read-only copy of the book for context building. The copy
// is rolled to the session's settlement cycle.
func (l *Ledger) View(session time.Time) *Book {
	view := l.book.Clone()
	view.Roll(session)
	return view
}

// Apply validates one order and, if accepted, executes it atomically:
// journal append (fsynced), then snapshot rewrite, under the scoped lock for
// the whole read-validate-mutate sequence. A rejected order changes nothing
// and never reaches the journal.
func (l *Ledger) Apply(ctx context.Context, order schema.Order, price, priorClose decimal.Decimal, session time.Time) (rules.Decision, Snapshot, error) {
	lock, err := acquireLock(ctx, filepath.Join(l.cfg.Dir, lockFile), l.cfg.LockTimeout)
	if err != nil {
		return rules.Decision{}, Snapshot{}, err
	}
	defer lock.Release()

	// pick up records appended through any other handle before validating
	if err := l.sync(); err != nil {
		return rules.Decision{}, Snapshot{}, err
	}
	l.book.Roll(session)

	decision := l.validator.Validate(l.book, order, price, priorClose)
	if !decision.Accepted {
		return decision, l.Snapshot(), nil
	}

	next := l.book.Clone()
	next.Trade(order.Action, order.Symbol, order.Quantity, price, decision.Fees, session)

	tx := schema.Transaction{
		Date:       schema.FormatDate(session),
		SequenceID: l.lastSeq + 1,
		ThisAction: schema.TradeAction{
			Action: order.Action,
			Symbol: order.Symbol,
			Amount: order.Quantity,
		},
		Positions: next.PositionsMap(),
	}
	if err := appendTransaction(JournalPath(l.cfg.Dir), tx); err != nil {
		return decision, Snapshot{}, fmt.Errorf("journal append: %w", err)
	}

	l.book = next
	l.lastSeq = tx.SequenceID
	l.lastDate = tx.Date

	snap := l.Snapshot()
	if err := WriteSnapshot(SnapshotPath(l.cfg.Dir), snap); err != nil {
		// the journal already holds the record; recovery replays it
		return decision, snap, fmt.Errorf("snapshot persist: %w", err)
	}
	return decision, snap, nil
}
