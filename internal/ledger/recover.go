package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"main/internal/schema"
)

// Replay rebuilds a book from an empty ledger by applying journal records in
// order. It is a pure function of the initial cash and the log: replaying
// any prefix reproduces the exact intermediate state, which is what makes
// crash recovery and audit verification deterministic.
func Replay(initialCash decimal.Decimal, txs []schema.Transaction) (*Book, uint64, string, error) {
	book := NewBook(initialCash)
	lastSeq, lastDate, err := ReplayOnto(book, 0, txs)
	if err != nil {
		return nil, 0, "", err
	}
	return book, lastSeq, lastDate, nil
}

// ReplayOnto applies journal records with SequenceID > fromSeq onto an
// existing book, verifying each record's post-state against the rebuilt
// book. A mismatch means the journal and the book disagree: corruption.
func ReplayOnto(book *Book, fromSeq uint64, txs []schema.Transaction) (uint64, string, error) {
	lastSeq := fromSeq
	var lastDate string
	for _, tx := range txs {
		if tx.SequenceID <= fromSeq {
			continue
		}
		if tx.SequenceID != lastSeq+1 {
			return 0, "", fmt.Errorf("%w: replay sequence gap (%d after %d)", ErrCorrupted, tx.SequenceID, lastSeq)
		}
		if err := replayOne(book, tx); err != nil {
			return 0, "", err
		}
		lastSeq = tx.SequenceID
		lastDate = tx.Date
	}
	return lastSeq, lastDate, nil
}

func replayOne(book *Book, tx schema.Transaction) error {
	session, err := schema.ParseDate(tx.Date)
	if err != nil {
		return fmt.Errorf("%w: record %d: %v", ErrCorrupted, tx.SequenceID, err)
	}
	newCash, ok := tx.Positions[schema.CashKey]
	if !ok {
		return fmt.Errorf("%w: record %d lacks %s", ErrCorrupted, tx.SequenceID, schema.CashKey)
	}
	action := tx.ThisAction
	if !action.Action.Valid() || action.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: record %d has invalid action", ErrCorrupted, tx.SequenceID)
	}

	var netAmount decimal.Decimal
	switch action.Action {
	case schema.ActionBuy:
		netAmount = book.cash.Sub(newCash)
	case schema.ActionSell:
		netAmount = newCash.Sub(book.cash)
	}
	if netAmount.IsNegative() {
		return fmt.Errorf("%w: record %d cash moves against its action", ErrCorrupted, tx.SequenceID)
	}

	book.applyCashDelta(action.Action, action.Symbol, action.Amount, netAmount, session)

	if err := verifyPositions(book, tx); err != nil {
		return err
	}
	return nil
}

// verifyPositions checks that the rebuilt book matches the record's
// persisted post-state exactly.
func verifyPositions(book *Book, tx schema.Transaction) error {
	got := book.PositionsMap()
	if len(got) != len(tx.Positions) {
		return fmt.Errorf("%w: record %d position set mismatch", ErrCorrupted, tx.SequenceID)
	}
	for key, want := range tx.Positions {
		have, ok := got[key]
		if !ok || !have.Equal(want) {
			return fmt.Errorf("%w: record %d diverges at %s (have %s, want %s)",
				ErrCorrupted, tx.SequenceID, key, have, want)
		}
	}
	return nil
}
