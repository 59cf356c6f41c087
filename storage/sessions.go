package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetSession returns the active conversation session for the identity, or
// nil when the user is idle at the menu.
func (p *Postgres) GetSession(ctx context.Context, phone string) (*Session, error) {
	var s Session
	err := p.db.GetContext(ctx, &s,
		`SELECT phone, state, draft, created_at, updated_at
		   FROM sessions WHERE phone = $1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// SetSession stores the state and draft for the identity, fully replacing
// any prior session. Each user has at most one active flow.
func (p *Postgres) SetSession(ctx context.Context, phone, state string, draft json.RawMessage) error {
	if len(draft) == 0 {
		draft = json.RawMessage(`{}`)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sessions (phone, state, draft)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (phone) DO UPDATE SET
		   state = EXCLUDED.state,
		   draft = EXCLUDED.draft,
		   updated_at = now()`,
		phone, state, []byte(draft))
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// ClearSession removes the session, returning the user to the implicit
// main-menu state. Clearing an absent session is not an error.
func (p *Postgres) ClearSession(ctx context.Context, phone string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
