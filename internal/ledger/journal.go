package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"main/internal/schema"
)

// ErrCorrupted reports a ledger whose persisted state cannot be trusted:
// unreadable journal lines, sequence gaps, or snapshot/journal divergence.
// It is fatal for the owning agent's process only.
var ErrCorrupted = errors.New("ledger state corrupted")

// appendTransaction appends one record to the journal and fsyncs before
// returning. The journal gains exactly one line or the call fails.
func appendTransaction(path string, tx schema.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction %d: %w", tx.SequenceID, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// readTransactions reads the full journal. A missing file is an empty
// journal; a malformed line or a sequence gap is corruption.
func readTransactions(path string) ([]schema.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []schema.Transaction
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var tx schema.Transaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("%w: journal line %d: %v", ErrCorrupted, line, err)
		}
		if n := len(out); n > 0 && tx.SequenceID != out[n-1].SequenceID+1 {
			return nil, fmt.Errorf("%w: sequence gap at line %d (%d after %d)",
				ErrCorrupted, line, tx.SequenceID, out[n-1].SequenceID)
		}
		out = append(out, tx)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// readTransactionsAfter returns journal records with SequenceID > seq.
func readTransactionsAfter(path string, seq uint64) ([]schema.Transaction, error) {
	all, err := readTransactions(path)
	if err != nil {
		return nil, err
	}
	idx := len(all)
	for i, tx := range all {
		if tx.SequenceID > seq {
			idx = i
			break
		}
	}
	return all[idx:], nil
}
