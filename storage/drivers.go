package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/akhmetov/weighbot/core/database"
	"github.com/akhmetov/weighbot/core/logger"
)

// GetDriver returns the driver by phone identity, or nil when unknown.
func (p *Postgres) GetDriver(ctx context.Context, phone string) (*Driver, error) {
	var d Driver
	err := p.db.GetContext(ctx, &d,
		`SELECT id, phone, full_name, personal_phone, truck_number,
		        is_registered, created_at, updated_at
		   FROM drivers WHERE phone = $1`, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}

// RegisterDriver creates or replaces the driver profile and marks it
// registered. The vehicle row for the truck is created in the same
// transaction so a first report always finds a last-weight baseline.
func (p *Postgres) RegisterDriver(ctx context.Context, phone, fullName, personalPhone, truck string) error {
	err := database.WithSerializableTx(ctx, p.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO drivers (phone, full_name, personal_phone, truck_number, is_registered)
			 VALUES ($1, $2, $3, $4, TRUE)
			 ON CONFLICT (phone) DO UPDATE SET
			   full_name = EXCLUDED.full_name,
			   personal_phone = EXCLUDED.personal_phone,
			   truck_number = EXCLUDED.truck_number,
			   is_registered = TRUE,
			   updated_at = now()`,
			phone, fullName, personalPhone, truck)
		if err != nil {
			return fmt.Errorf("upsert driver: %w", err)
		}
		return ensureVehicle(ctx, tx, truck)
	})
	if err != nil {
		return err
	}

	logger.STORE.Info("driver registered",
		slog.String("event", "driver.register"),
		slog.String("identity", phone),
		slog.String("truck", truck),
	)
	return nil
}

// UpdateDriverTruck switches the driver to another truck. The new truck gets
// a vehicle row if it never weighed before; historical weighings keep the
// truck number they were recorded with.
func (p *Postgres) UpdateDriverTruck(ctx context.Context, phone, truck string) error {
	err := database.WithSerializableTx(ctx, p.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE drivers SET truck_number = $2, updated_at = now()
			  WHERE phone = $1 AND is_registered`, phone, truck)
		if err != nil {
			return fmt.Errorf("update driver truck: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("update driver truck: driver %s not registered", phone)
		}
		return ensureVehicle(ctx, tx, truck)
	})
	if err != nil {
		return err
	}

	logger.STORE.Info("driver truck updated",
		slog.String("event", "driver.truck_change"),
		slog.String("identity", phone),
		slog.String("truck", truck),
	)
	return nil
}

func ensureVehicle(ctx context.Context, tx *sqlx.Tx, truck string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO vehicles (truck_number, last_weight)
		 VALUES ($1, 0)
		 ON CONFLICT (truck_number) DO NOTHING`, truck)
	if err != nil {
		return fmt.Errorf("ensure vehicle: %w", err)
	}
	return nil
}
