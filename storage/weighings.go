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

// GetLastWeight returns the last committed weight for the truck. An unknown
// truck reads as zero, so the very first report computes a difference from
// an empty scale.
func (p *Postgres) GetLastWeight(ctx context.Context, truck string) (float64, error) {
	var w float64
	err := p.db.GetContext(ctx, &w,
		`SELECT last_weight FROM vehicles WHERE truck_number = $1`, truck)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last weight: %w", err)
	}
	return w, nil
}

// SaveWeighing commits one report. The previous weight is re-read inside the
// serializable transaction, so the stored difference is always against the
// weight that is actually last at commit time, not the one shown to the user
// at entry time. Concurrent commits for the same truck serialize; the later
// one diffs against the earlier.
func (p *Postgres) SaveWeighing(ctx context.Context, rec WeighingRecord) (*Weighing, error) {
	var saved Weighing
	err := database.WithSerializableTx(ctx, p.db, func(tx *sqlx.Tx) error {
		if err := ensureVehicle(ctx, tx, rec.TruckNumber); err != nil {
			return err
		}

		var prev float64
		err := tx.GetContext(ctx, &prev,
			`SELECT last_weight FROM vehicles WHERE truck_number = $1 FOR UPDATE`,
			rec.TruckNumber)
		if err != nil {
			return fmt.Errorf("read last weight: %w", err)
		}

		saved = Weighing{
			DriverPhone:      rec.DriverPhone,
			TruckNumber:      rec.TruckNumber,
			DriverName:       rec.DriverName,
			ClientName:       rec.ClientName,
			PreviousWeight:   prev,
			CurrentWeight:    rec.CurrentWeight,
			WeightDifference: rec.CurrentWeight - prev,
			StationName:      rec.StationName,
			PhotoPath:        rec.PhotoPath,
		}

		err = tx.QueryRowxContext(ctx,
			`INSERT INTO weighings
			   (driver_phone, truck_number, driver_name, client_name,
			    previous_weight, current_weight, weight_difference,
			    station_name, photo_path)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id, created_at`,
			saved.DriverPhone, saved.TruckNumber, saved.DriverName, saved.ClientName,
			saved.PreviousWeight, saved.CurrentWeight, saved.WeightDifference,
			saved.StationName, saved.PhotoPath,
		).Scan(&saved.ID, &saved.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert weighing: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE vehicles
			    SET last_weight = $2, last_weighing_at = now(), updated_at = now()
			  WHERE truck_number = $1`,
			saved.TruckNumber, saved.CurrentWeight)
		if err != nil {
			return fmt.Errorf("update vehicle weight: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.STORE.Info("weighing saved",
		slog.Int64("weighing_id", saved.ID),
		slog.String("event", "weighing.commit"),
		slog.String("identity", saved.DriverPhone),
		slog.String("truck", saved.TruckNumber),
		slog.Float64("weight", saved.CurrentWeight),
		slog.Float64("prev_weight", saved.PreviousWeight),
		slog.Float64("diff", saved.WeightDifference),
	)
	return &saved, nil
}
