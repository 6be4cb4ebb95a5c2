/*
Ledger keeps one agent's cash/position state under a durable journal.

# Module
  - book: in-memory cash + positions with cost basis and settlement cycle
  - journal: append-only transaction log, fsynced per record
  - snapshot: materialized state, rewritten after each accepted order
  - lock: advisory file lock scoped to a single apply
  - recover: snapshot + journal-tail replay

# Source
  - accepted orders from the decision loop

# Produce
  - transaction records for the dashboard and the archive exporter

# Sharded
  - one directory per agent, owned by exactly one process
*/
package ledger
