package billing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rmaia/advoc/models"
)

// generateFixture builds the usual draft: 120 minutes at 300.00 plus a 150.00
// reimbursable expense, totalling 750.00.
func generateFixture(t *testing.T, database *sql.DB, admin models.User) (*models.Invoice, int, int) {
	t.Helper()
	clientID := seedClient(t, database, "Acme Corp", nil)
	ruleID := seedHourlyRule(t, database, clientID, "300.00")
	entryID := seedTimeEntry(t, database, clientID, nil, nil, "2026-08-10", 120, nil)
	expenseID := seedExpense(t, database, clientID, nil, "150.00", "2026-08-12")

	in := baseInput(clientID)
	in.BillingRuleID = &ruleID
	in.IncludeExpenses = true

	inv, err := Generate(database, AllowAll{}, admin, in)
	require.NoError(t, err)
	requireDecimalEqual(t, "750.00", inv.Total)
	return inv, entryID, expenseID
}

func TestSendConsumesSourcesAndCreatesReceivable(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, entryID, expenseID := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceSent, sent.Status)
	require.NotNil(t, sent.ReceivableEntryID)

	var entryBilled, expenseBilled *time.Time
	require.NoError(t, database.QueryRow("SELECT billed_at FROM time_entries WHERE id = ?", entryID).Scan(&entryBilled))
	require.NoError(t, database.QueryRow("SELECT billed_at FROM ledger_entries WHERE id = ?", expenseID).Scan(&expenseBilled))
	require.NotNil(t, entryBilled)
	require.NotNil(t, expenseBilled)

	var entryType, status, dueDate string
	var amount decimal.Decimal
	require.NoError(t, database.QueryRow(`SELECT entry_type, status, due_date, amount
		FROM ledger_entries WHERE id = ?`, *sent.ReceivableEntryID).Scan(&entryType, &status, &dueDate, &amount))
	require.Equal(t, models.EntryReceivable, entryType)
	require.Equal(t, models.EntryPending, status)
	require.Equal(t, inv.DueDate, dueDate)
	requireDecimalEqual(t, "750.00", amount)
}

func TestSendNonDraftFails(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	_, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)

	// Sending twice is not idempotent success, it is a transition error.
	_, err = Send(database, AllowAll{}, admin, inv.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM ledger_entries WHERE entry_type = 'receivable'").Scan(&n))
	require.Equal(t, 1, n)
}

func TestSendStaleConsumption(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	clientID := seedClient(t, database, "Acme Corp", nil)
	ruleID := seedHourlyRule(t, database, clientID, "300.00")
	entryID := seedTimeEntry(t, database, clientID, nil, nil, "2026-08-10", 120, nil)

	in := baseInput(clientID)
	in.BillingRuleID = &ruleID

	first, err := Generate(database, AllowAll{}, admin, in)
	require.NoError(t, err)
	second, err := Generate(database, AllowAll{}, admin, in)
	require.NoError(t, err)

	_, err = Send(database, AllowAll{}, admin, first.ID)
	require.NoError(t, err)

	// The overlapping draft must fail whole, leaving no partial consumption.
	_, err = Send(database, AllowAll{}, admin, second.ID)
	require.ErrorIs(t, err, ErrStaleConsumption)

	got, err := GetInvoice(database, second.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceDraft, got.Status)
	require.Nil(t, got.ReceivableEntryID)

	var billedBy int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM invoice_items WHERE time_entry_id = ?`, entryID).Scan(&billedBy))
	require.Equal(t, 2, billedBy)
}

func TestMarkPaidPropagatesToReceivable(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)

	paid, err := MarkPaid(database, AllowAll{}, admin, sent.ID, "2026-09-10")
	require.NoError(t, err)
	require.Equal(t, models.InvoicePaid, paid.Status)

	var status string
	var paidAt *string
	require.NoError(t, database.QueryRow("SELECT status, paid_at FROM ledger_entries WHERE id = ?",
		*sent.ReceivableEntryID).Scan(&status, &paidAt))
	require.Equal(t, models.EntryPaid, status)
	require.NotNil(t, paidAt)
	require.Equal(t, "2026-09-10", *paidAt)
}

func TestMarkPaidDefaultsToToday(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	_, err = MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.NoError(t, err)

	var paidAt *string
	require.NoError(t, database.QueryRow("SELECT paid_at FROM ledger_entries WHERE id = ?",
		*sent.ReceivableEntryID).Scan(&paidAt))
	require.NotNil(t, paidAt)
	require.Equal(t, time.Now().Format("2006-01-02"), *paidAt)
}

func TestMarkPaidOnlyFromSentOrOverdue(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	_, err := MarkPaid(database, AllowAll{}, admin, inv.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)

	_, err = database.Exec("UPDATE invoices SET status = 'overdue' WHERE id = ?", sent.ID)
	require.NoError(t, err)
	paid, err := MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.InvoicePaid, paid.Status)

	_, err = MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelDraftAndSent(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)

	draft, _, _ := generateFixture(t, database, admin)
	cancelled, err := Cancel(database, AllowAll{}, admin, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceCancelled, cancelled.Status)

	other, _, _ := generateFixture(t, database, admin)
	sent, err := Send(database, AllowAll{}, admin, other.ID)
	require.NoError(t, err)
	cancelled, err = Cancel(database, AllowAll{}, admin, sent.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceCancelled, cancelled.Status)

	var status string
	require.NoError(t, database.QueryRow("SELECT status FROM ledger_entries WHERE id = ?",
		*sent.ReceivableEntryID).Scan(&status))
	require.Equal(t, models.EntryCancelled, status)
}

func TestCancelPaidForbidden(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	_, err = MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.NoError(t, err)

	_, err = Cancel(database, AllowAll{}, admin, sent.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// The paid receivable stays paid.
	var status string
	require.NoError(t, database.QueryRow("SELECT status FROM ledger_entries WHERE id = ?",
		*sent.ReceivableEntryID).Scan(&status))
	require.Equal(t, models.EntryPaid, status)
}

func TestCancelTwiceFails(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	_, err := Cancel(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	_, err = Cancel(database, AllowAll{}, admin, inv.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequestOnlinePayment(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	got, err := RequestOnlinePayment(database, AllowAll{}, admin, inv.ID, "stripe", "", "")
	require.NoError(t, err)
	require.Equal(t, "stripe", got.Gateway)
	require.Equal(t, models.OnlineAwaiting, got.OnlineStatus)
	require.NotNil(t, got.OnlineExternalID)
	require.NotNil(t, got.OnlineURL)

	_, err = RequestOnlinePayment(database, AllowAll{}, admin, inv.ID, "paypal", "", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestMarkPaidSettlesAwaitingOnlinePayment(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	_, err = RequestOnlinePayment(database, AllowAll{}, admin, sent.ID, "asaas", "ext-1", "https://pay.example/ext-1")
	require.NoError(t, err)

	paid, err := MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.OnlinePaid, paid.OnlineStatus)
	require.NotNil(t, paid.OnlinePaidAt)
}

func TestCancelClearsAwaitingOnlinePayment(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	_, err := RequestOnlinePayment(database, AllowAll{}, admin, inv.ID, "mercadopago", "", "")
	require.NoError(t, err)

	cancelled, err := Cancel(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)
	require.Equal(t, models.OnlineCancelled, cancelled.OnlineStatus)
}

func TestAppendAndRemoveItems(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	got, err := AppendItem(database, AllowAll{}, admin, inv.ID, models.InvoiceItemInput{
		Kind:        models.ItemService,
		Description: "Contract review",
		Quantity:    dec(t, "2"),
		UnitPrice:   dec(t, "125.50"),
	})
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	requireDecimalEqual(t, "251.00", got.SubtotalOther)
	requireDecimalEqual(t, "1001.00", got.Total)

	added := got.Items[len(got.Items)-1]
	got, err = RemoveItem(database, AllowAll{}, admin, inv.ID, added.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	requireDecimalEqual(t, "750.00", got.Total)

	_, err = RemoveItem(database, AllowAll{}, admin, inv.ID, 99999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestItemsImmutableAfterSend(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)

	_, err = AppendItem(database, AllowAll{}, admin, sent.ID, models.InvoiceItemInput{
		Kind: models.ItemService, Description: "late add", UnitPrice: dec(t, "10"),
	})
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = RemoveItem(database, AllowAll{}, admin, sent.ID, sent.Items[0].ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycleAuthorization(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	outsider := seedUser(t, database, "outsider", models.RoleLawyer)
	inv, _, _ := generateFixture(t, database, admin)

	auth := &DBAuthorizer{DB: database}
	_, err := Send(database, auth, outsider, inv.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = Cancel(database, auth, outsider, inv.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestMarkOverdue(t *testing.T) {
	database := newTestDB(t)
	admin := seedUser(t, database, "admin", models.RoleAdmin)
	inv, _, _ := generateFixture(t, database, admin)

	sent, err := Send(database, AllowAll{}, admin, inv.ID)
	require.NoError(t, err)

	// Not yet due.
	n, err := MarkOverdue(database, mustDate(t, "2026-09-15"))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = MarkOverdue(database, mustDate(t, "2026-09-16"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := GetInvoice(database, sent.ID)
	require.NoError(t, err)
	require.Equal(t, models.InvoiceOverdue, got.Status)

	var status string
	require.NoError(t, database.QueryRow("SELECT status FROM ledger_entries WHERE id = ?",
		*sent.ReceivableEntryID).Scan(&status))
	require.Equal(t, models.EntryOverdue, status)

	// Overdue invoices can still be collected.
	paid, err := MarkPaid(database, AllowAll{}, admin, sent.ID, "")
	require.NoError(t, err)
	require.Equal(t, models.InvoicePaid, paid.Status)

	// Idempotent.
	n, err = MarkOverdue(database, mustDate(t, "2026-09-16"))
	require.NoError(t, err)
	require.Zero(t, n)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}
