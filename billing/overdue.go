package billing

import (
	"database/sql"
	"log/slog"
	"time"
)

// MarkOverdue flips sent invoices past their due date to overdue and pending
// ledger entries past due likewise. Idempotent; safe to run at any frequency.
// A convenience for reporting, not a correctness requirement.
func MarkOverdue(db *sql.DB, today time.Time) (int64, error) {
	day := today.Format("2006-01-02")

	res, err := db.Exec("UPDATE invoices SET status = 'overdue', updated_at = CURRENT_TIMESTAMP WHERE status = 'sent' AND due_date < ?", day)
	if err != nil {
		return 0, err
	}
	flipped, _ := res.RowsAffected()

	_, err = db.Exec("UPDATE ledger_entries SET status = 'overdue', updated_at = CURRENT_TIMESTAMP WHERE status = 'pending' AND due_date < ?", day)
	if err != nil {
		return flipped, err
	}
	return flipped, nil
}

// StartOverdueSweeper runs MarkOverdue on a fixed interval in the background.
func StartOverdueSweeper(db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			n, err := MarkOverdue(db, time.Now())
			if err != nil {
				slog.Error("overdue sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("marked invoices overdue", "count", n)
			}
		}
	}()
}
