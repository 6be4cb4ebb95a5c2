// Package scheduler walks the simulation calendar for each configured
// agent. A single agent runs in-process; multiple agents each get their own
// OS process, so one agent's crash or stuck retry loop cannot touch another
// agent's ledger or budget.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/archive"
	"main/internal/audit"
	"main/internal/bus"
	"main/internal/calendar"
	"main/internal/driver"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/oracle"
	"main/internal/report"
	"main/internal/rules"
)

const (
	auditFileName      = "audit.jsonl"
	defaultLockTimeout = 5 * time.Second
	eventQueueSize     = 1024
)

// AgentDir returns one agent's state directory inside the run output.
func AgentDir(outputDir, agent string) string {
	return filepath.Join(outputDir, agent)
}

// AuditPath returns one agent's audit log path.
func AuditPath(outputDir, agent string) string {
	return filepath.Join(AgentDir(outputDir, agent), auditFileName)
}

// RunAgent executes one agent's full calendar walk in-process and writes
// its report. This is the unit a spawned child process runs.
func RunAgent(ctx context.Context, loaded ops.Loaded, name string) (driver.RunResult, error) {
	agent, ok := loaded.Agent(name)
	if !ok {
		return driver.RunResult{}, fmt.Errorf("unknown agent: %s", name)
	}

	store, err := oracle.Load(loaded.DataDir)
	if err != nil {
		return driver.RunResult{}, fmt.Errorf("load dataset: %w", err)
	}
	sessions, err := calendar.Build(loaded.Calendar)
	if err != nil {
		return driver.RunResult{}, err
	}
	validator, err := rules.NewValidator(loaded.Rules, loaded.Registry)
	if err != nil {
		return driver.RunResult{}, err
	}
	book, err := ledger.Open(ledger.Config{
		Dir:         AgentDir(loaded.OutputDir, name),
		Agent:       name,
		InitialCash: agent.InitialCash,
		LockTimeout: defaultLockTimeout,
	}, validator)
	if err != nil {
		return driver.RunResult{}, fmt.Errorf("open ledger: %w", err)
	}
	provider, err := ops.BuildProvider(agent)
	if err != nil {
		return driver.RunResult{}, err
	}

	writer, err := audit.NewWriter(audit.DefaultConfig(AuditPath(loaded.OutputDir, name)))
	if err != nil {
		return driver.RunResult{}, err
	}
	if err := writer.Start(ctx); err != nil {
		return driver.RunResult{}, err
	}

	metrics := obs.NewMetrics()
	events := bus.NewQueue(eventQueueSize)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		events.Run(ctx, func(e bus.Event) {
			if err := writer.TryAppend(e.Record); err != nil {
				metrics.IncAuditDrop()
			}
		})
	}()

	loop, err := driver.New(loaded.Driver, provider, book, store, events, metrics)
	if err != nil {
		return driver.RunResult{}, err
	}

	logs.Infof("agent %s: starting run %s, %d sessions", name, loop.RunID(), len(sessions))
	result, runErr := loop.Run(ctx, sessions)

	events.Close()
	<-dispatchDone
	if err := writer.Close(); err != nil {
		logs.Errorf("agent %s: audit writer: %v", name, err)
	}
	if runErr != nil {
		return result, runErr
	}

	if err := finishRun(loaded, name, agent, store, sessions, result); err != nil {
		logs.Errorf("agent %s: post-run: %v", name, err)
	}

	snap := metrics.Snapshot()
	logs.Infof("agent %s: done, steps=%d trades=%d retries=%d rejections=%d",
		name, snap.Steps, snap.Trades, snap.TransientRetries, len(snap.RejectionCounts))
	return result, nil
}

// finishRun writes the markdown report and, when configured, archives the
// run to Postgres.
func finishRun(loaded ops.Loaded, name string, agent ops.AgentConfig, store *oracle.Store, sessions []time.Time, result driver.RunResult) error {
	txs, err := ledger.ReadJournal(AgentDir(loaded.OutputDir, name))
	if err != nil {
		return err
	}
	summary, err := report.Build(name, result.RunID, agent.InitialCash, txs, store, sessions)
	if err != nil {
		return err
	}
	path, err := report.Write(AgentDir(loaded.OutputDir, name), summary)
	if err != nil {
		return err
	}
	logs.Infof("agent %s: report written to %s", name, path)

	if loaded.Archive.DSN == "" {
		return nil
	}
	sink, err := archive.NewSink(loaded.Archive.DSN, loaded.Archive.BatchSize)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.ArchiveTransactions(result.RunID, name, txs); err != nil {
		return err
	}
	records, err := audit.ReadFile(AuditPath(loaded.OutputDir, name))
	if err != nil {
		return err
	}
	return sink.ArchiveAudit(records)
}

// Run executes every configured agent. One agent runs in this process;
// more than one fans out to child processes, one per agent, by re-executing
// this binary with the agent flag.
func Run(ctx context.Context, configPath string, loaded ops.Loaded) error {
	if len(loaded.Agents) == 1 {
		_, err := RunAgent(ctx, loaded, loaded.Agents[0].Name)
		return err
	}
	return runIsolated(ctx, configPath, loaded)
}

func runIsolated(ctx context.Context, configPath string, loaded ops.Loaded) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	type child struct {
		name string
		cmd  *exec.Cmd
	}
	children := make([]child, 0, len(loaded.Agents))
	for _, agent := range loaded.Agents {
		cmd := exec.CommandContext(ctx, exe, "-config", configPath, "-agent", agent.Name)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("spawn agent %s: %w", agent.Name, err)
		}
		logs.Infof("agent %s: spawned pid %d", agent.Name, cmd.Process.Pid)
		children = append(children, child{name: agent.Name, cmd: cmd})
	}

	var failed []string
	for _, c := range children {
		if err := c.cmd.Wait(); err != nil {
			logs.Errorf("agent %s: process failed: %v", c.name, err)
			failed = append(failed, c.name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("agents failed: %v", failed)
	}
	return nil
}
