package storage

import (
	"context"
	"fmt"
	"time"
)

// GetStatistics aggregates weighings grouped by driver, truck and client.
// A nil since means all time; otherwise only weighings at or after since
// are counted. Totals and averages are over the recorded current weight,
// not the signed difference, so a total reads as hauled volume.
func (p *Postgres) GetStatistics(ctx context.Context, since *time.Time) (*Statistics, error) {
	stats := &Statistics{}

	groups := []struct {
		dest *[]StatRow
		sql  string
	}{
		{&stats.ByDriver,
			`SELECT driver_phone AS key,
			        MAX(driver_name) AS label,
			        COUNT(*) AS cnt,
			        COALESCE(SUM(current_weight), 0) AS total,
			        COALESCE(AVG(current_weight), 0) AS avg
			   FROM weighings
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			  GROUP BY driver_phone
			  ORDER BY cnt DESC, label`},
		{&stats.ByTruck,
			`SELECT truck_number AS key,
			        truck_number AS label,
			        COUNT(*) AS cnt,
			        COALESCE(SUM(current_weight), 0) AS total,
			        COALESCE(AVG(current_weight), 0) AS avg
			   FROM weighings
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			  GROUP BY truck_number
			  ORDER BY cnt DESC, label`},
		{&stats.ByClient,
			`SELECT client_name AS key,
			        client_name AS label,
			        COUNT(*) AS cnt,
			        COALESCE(SUM(current_weight), 0) AS total,
			        COALESCE(AVG(current_weight), 0) AS avg
			   FROM weighings
			  WHERE ($1::timestamptz IS NULL OR created_at >= $1)
			  GROUP BY client_name
			  ORDER BY cnt DESC, label`},
	}

	for _, g := range groups {
		if err := p.db.SelectContext(ctx, g.dest, g.sql, since); err != nil {
			return nil, fmt.Errorf("get statistics: %w", err)
		}
	}
	return stats, nil
}
