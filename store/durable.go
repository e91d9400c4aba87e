package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ipfs/go-cid"
	_ "modernc.org/sqlite"

	"github.com/ipvm-wg/homestar/invocation"
	"github.com/ipvm-wg/homestar/ipld"
	"github.com/ipvm-wg/homestar/workflow"
)

// WorkflowStatus is the durable lifecycle state of a submitted workflow
// (§4.5, §7: "workflow goes to Stuck, retries counter increments").
type WorkflowStatus string

const (
	StatusRunning   WorkflowStatus = "running"
	StatusCompleted WorkflowStatus = "completed"
	StatusStuck     WorkflowStatus = "stuck"
)

// DurableStore is the SQLite-backed persistence layer for receipts and
// workflow progress (§4.3, §6). Migrations are append-only: numbered,
// forward-only, and never destructive (§9 design notes).
type DurableStore struct {
	db *sql.DB
}

// NewDurableStore opens (creating if necessary) the SQLite database at
// dbPath in WAL mode and runs pending migrations.
func NewDurableStore(dbPath string) (*DurableStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &DurableStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *DurableStore) Close() error { return s.db.Close() }

func (s *DurableStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// migrations are numbered and additive; a row in schema_migrations marks
// each as applied so re-running NewDurableStore is idempotent.
var migrations = []string{
	// 0001: receipts, keyed by their own CID and indexed by the
	// instruction CID they memoize.
	`CREATE TABLE IF NOT EXISTS receipts (
		cid TEXT PRIMARY KEY,
		instruction_cid TEXT NOT NULL,
		issuer TEXT,
		dag_cbor BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipts_instruction_cid ON receipts(instruction_cid);`,

	// 0002: workflows and their append-only progress table.
	`CREATE TABLE IF NOT EXISTS workflows (
		cid TEXT PRIMARY KEY,
		name TEXT,
		num_tasks INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		retries INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS workflows_receipts (
		workflow_cid TEXT NOT NULL,
		receipt_cid TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		PRIMARY KEY (workflow_cid, receipt_cid),
		FOREIGN KEY (workflow_cid) REFERENCES workflows(cid),
		FOREIGN KEY (receipt_cid) REFERENCES receipts(cid)
	);`,
}

func (s *DurableStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (id INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	for i, stmt := range migrations {
		id := i + 1
		var exists int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists > 0 {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %04d: %w", id, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (id) VALUES (?)`, id); err != nil {
			return err
		}
	}
	return nil
}

// PutReceipt persists a receipt, indexed by both its own CID and the
// instruction CID it memoizes. Receipts are never rewritten once written
// (§9 design notes); a duplicate insert is a no-op.
func (s *DurableStore) PutReceipt(ctx context.Context, instructionCID cid.Cid, r invocation.Receipt) (cid.Cid, error) {
	receiptCID, err := r.CID()
	if err != nil {
		return cid.Undef, fmt.Errorf("store: compute receipt cid: %w", err)
	}
	encoded, err := ipld.EncodeDAGCBOR(r.ToIPLD())
	if err != nil {
		return cid.Undef, fmt.Errorf("store: encode receipt: %w", err)
	}
	var issuer string
	if r.Issuer != nil {
		issuer = string(*r.Issuer)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO receipts (cid, instruction_cid, issuer, dag_cbor, created_at) VALUES (?, ?, ?, ?, ?)`,
		receiptCID.String(), instructionCID.String(), issuer, encoded, time.Now().UTC(),
	)
	if err != nil {
		return cid.Undef, fmt.Errorf("store: insert receipt: %w", err)
	}
	return receiptCID, nil
}

// GetReceipt looks up a receipt by its own CID.
func (s *DurableStore) GetReceipt(ctx context.Context, receiptCID cid.Cid) (invocation.Receipt, bool, error) {
	var encoded []byte
	err := s.db.QueryRowContext(ctx, `SELECT dag_cbor FROM receipts WHERE cid = ?`, receiptCID.String()).Scan(&encoded)
	if err == sql.ErrNoRows {
		return invocation.Receipt{}, false, nil
	}
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("store: query receipt: %w", err)
	}
	v, err := ipld.DecodeDAGCBOR(encoded)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("store: decode receipt: %w", err)
	}
	r, err := invocation.ReceiptFromIPLD(v)
	if err != nil {
		return invocation.Receipt{}, false, fmt.Errorf("store: parse receipt: %w", err)
	}
	return r, true, nil
}

// ReceiptsForInstruction returns every receipt recorded for the given
// instruction CID, oldest first (§9: distinct issuers may each contribute
// a receipt for the same instruction; the store retains all of them).
func (s *DurableStore) ReceiptsForInstruction(ctx context.Context, instructionCID cid.Cid) ([]invocation.Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dag_cbor FROM receipts WHERE instruction_cid = ? ORDER BY created_at ASC`, instructionCID.String())
	if err != nil {
		return nil, fmt.Errorf("store: query receipts for instruction: %w", err)
	}
	defer rows.Close()

	var out []invocation.Receipt
	for rows.Next() {
		var encoded []byte
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("store: scan receipt: %w", err)
		}
		v, err := ipld.DecodeDAGCBOR(encoded)
		if err != nil {
			return nil, fmt.Errorf("store: decode receipt: %w", err)
		}
		r, err := invocation.ReceiptFromIPLD(v)
		if err != nil {
			return nil, fmt.Errorf("store: parse receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutWorkflow inserts a freshly submitted workflow's row, or is a no-op
// if the workflow's CID was already recorded (idempotent submission).
func (s *DurableStore) PutWorkflow(ctx context.Context, workflowCID cid.Cid, name string, numTasks int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO workflows (cid, name, num_tasks, status, retries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		workflowCID.String(), name, numTasks, StatusRunning, now, now,
	)
	if err != nil {
		return fmt.Errorf("store: insert workflow: %w", err)
	}
	return nil
}

// RecordWorkflowReceipt appends a receipt to a workflow's progress and
// touches the workflow's updated_at. It is idempotent: recording the same
// (workflow, receipt) pair twice does not grow progress twice (§3, §8:
// "progress_count only increases").
func (s *DurableStore) RecordWorkflowReceipt(ctx context.Context, workflowCID, receiptCID cid.Cid) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO workflows_receipts (workflow_cid, receipt_cid, recorded_at) VALUES (?, ?, ?)`,
		workflowCID.String(), receiptCID.String(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store: record workflow receipt: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE workflows SET updated_at = ? WHERE cid = ?`, time.Now().UTC(), workflowCID.String())
	if err != nil {
		return fmt.Errorf("store: touch workflow: %w", err)
	}
	return nil
}

// MarkWorkflowStuck increments the retries counter and records the most
// recent error, transitioning the workflow to Stuck (§7: "workflow goes
// to Stuck, retries counter increments, last error recorded").
func (s *DurableStore) MarkWorkflowStuck(ctx context.Context, workflowCID cid.Cid, lastErr error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET status = ?, retries = retries + 1, last_error = ?, updated_at = ? WHERE cid = ?`,
		StatusStuck, lastErr.Error(), time.Now().UTC(), workflowCID.String(),
	)
	if err != nil {
		return fmt.Errorf("store: mark workflow stuck: %w", err)
	}
	return nil
}

// MarkWorkflowCompleted transitions a workflow to Completed.
func (s *DurableStore) MarkWorkflowCompleted(ctx context.Context, workflowCID cid.Cid) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET status = ?, updated_at = ? WHERE cid = ?`,
		StatusCompleted, time.Now().UTC(), workflowCID.String(),
	)
	if err != nil {
		return fmt.Errorf("store: mark workflow completed: %w", err)
	}
	return nil
}

// WorkflowRecord is the durable view of a workflow, combining its
// append-only progress (workflow.Info) with the lifecycle bookkeeping
// named in §7 (status, retries, last_error).
type WorkflowRecord struct {
	Info      workflow.Info
	Status    WorkflowStatus
	Retries   int
	LastError string
}

// WorkflowInfo reconstructs a WorkflowRecord from durable storage. The
// bool result reports whether the workflow CID was found at all.
func (s *DurableStore) WorkflowInfo(ctx context.Context, workflowCID cid.Cid) (WorkflowRecord, bool, error) {
	var name string
	var numTasks int
	var status WorkflowStatus
	var retries int
	var lastErr sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, num_tasks, status, retries, last_error FROM workflows WHERE cid = ?`, workflowCID.String(),
	).Scan(&name, &numTasks, &status, &retries, &lastErr)
	if err == sql.ErrNoRows {
		return WorkflowRecord{}, false, nil
	}
	if err != nil {
		return WorkflowRecord{}, false, fmt.Errorf("store: query workflow: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT receipt_cid FROM workflows_receipts WHERE workflow_cid = ? ORDER BY recorded_at ASC`, workflowCID.String())
	if err != nil {
		return WorkflowRecord{}, false, fmt.Errorf("store: query workflow receipts: %w", err)
	}
	defer rows.Close()

	info := workflow.NewInfo(workflowCID, name, numTasks)
	for rows.Next() {
		var receiptCIDStr string
		if err := rows.Scan(&receiptCIDStr); err != nil {
			return WorkflowRecord{}, false, fmt.Errorf("store: scan workflow receipt: %w", err)
		}
		receiptCID, err := cid.Decode(receiptCIDStr)
		if err != nil {
			return WorkflowRecord{}, false, fmt.Errorf("store: decode receipt cid: %w", err)
		}
		info = info.WithReceipt(receiptCID)
	}
	if err := rows.Err(); err != nil {
		return WorkflowRecord{}, false, err
	}

	return WorkflowRecord{Info: info, Status: status, Retries: retries, LastError: lastErr.String}, true, nil
}
