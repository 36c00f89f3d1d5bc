package billing

import (
	"database/sql"
	"errors"

	"github.com/rmaia/advoc/models"
)

// Authorizer answers "may this actor act on this client/matter". It is the
// only coupling between the billing core and the firm's role model, so tests
// and future deployments can swap it out.
type Authorizer interface {
	CanActOn(actor models.User, clientID int, matterID *int) (bool, error)
}

// DBAuthorizer grants admins everything; other users act on clients they are
// responsible for and matters where they are the assigned lawyer.
type DBAuthorizer struct {
	DB *sql.DB
}

func (a *DBAuthorizer) CanActOn(actor models.User, clientID int, matterID *int) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}

	var responsible sql.NullInt64
	err := a.DB.QueryRow("SELECT responsible_user_id FROM clients WHERE id = ?", clientID).Scan(&responsible)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if responsible.Valid && int(responsible.Int64) == actor.ID {
		return true, nil
	}

	if matterID != nil {
		var lawyer sql.NullInt64
		err := a.DB.QueryRow("SELECT lawyer_id FROM matters WHERE id = ?", *matterID).Scan(&lawyer)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return false, err
		}
		if lawyer.Valid && int(lawyer.Int64) == actor.ID {
			return true, nil
		}
	}
	return false, nil
}

// AllowAll authorizes every request. Used in tests.
type AllowAll struct{}

func (AllowAll) CanActOn(models.User, int, *int) (bool, error) { return true, nil }
