package billing

// The receivable bridge maintains the single ledger entry representing "money
// owed for this invoice". The invoice holds the foreign key back to it, so
// repeated upserts update the same row.

func upsertReceivable(q querier, inv *invoiceRow) (int, error) {
	description := "Invoice " + inv.Number

	if inv.ReceivableEntryID != nil {
		res, err := q.Exec(`UPDATE ledger_entries SET amount = ?, due_date = ?, description = ?,
			status = 'pending', updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			inv.Total.Round(2), inv.DueDate, description, *inv.ReceivableEntryID)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return *inv.ReceivableEntryID, nil
		}
		// Linked row is gone; fall through and recreate it.
	}

	var id int
	err := q.QueryRow(`INSERT INTO ledger_entries (client_id, matter_id, entry_type, description,
		amount, due_date, status, reimbursable, created_by)
		VALUES (?, ?, 'receivable', ?, ?, ?, 'pending', 0, ?) RETURNING id`,
		inv.ClientID, inv.MatterID, description, inv.Total.Round(2), inv.DueDate, inv.CreatedBy).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func setReceivableStatus(q querier, entryID int, status string, paidOn *string) error {
	if paidOn != nil {
		_, err := q.Exec(`UPDATE ledger_entries SET status = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, *paidOn, entryID)
		return err
	}
	_, err := q.Exec(`UPDATE ledger_entries SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, entryID)
	return err
}
