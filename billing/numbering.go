package billing

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Invoice numbers look like INV-20260829-003: unique and monotonically
// increasing within the calendar day, independent of client or matter.
const numberPrefix = "INV"

// nextNumber computes the next invoice number for the given day. It must run
// inside the transaction that inserts the invoice; the unique index on
// invoices.number catches the read-max-then-insert race and the caller retries.
func nextNumber(tx *sql.Tx, today time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", numberPrefix, today.Format("20060102"))

	var last string
	err := tx.QueryRow("SELECT number FROM invoices WHERE number LIKE ? ORDER BY number DESC LIMIT 1", prefix+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("reading last invoice number: %w", err)
	}

	seq := 1
	if last != "" {
		n, convErr := strconv.Atoi(strings.TrimPrefix(last, prefix))
		if convErr != nil {
			return "", fmt.Errorf("malformed invoice number %q", last)
		}
		seq = n + 1
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}
