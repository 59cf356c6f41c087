// Package storage persists drivers, vehicles, weighing reports and
// conversation sessions in postgres. All write operations run inside
// serializable transactions so a weighing commit cannot interleave with
// another commit for the same truck.
package storage

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// Driver is a registered (or partially known) bot user keyed by phone.
type Driver struct {
	ID            int64     `db:"id"`
	Phone         string    `db:"phone"`
	FullName      string    `db:"full_name"`
	PersonalPhone string    `db:"personal_phone"`
	TruckNumber   string    `db:"truck_number"`
	IsRegistered  bool      `db:"is_registered"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Vehicle tracks the last recorded weight per truck.
type Vehicle struct {
	ID             int64      `db:"id"`
	TruckNumber    string     `db:"truck_number"`
	LastWeight     float64    `db:"last_weight"`
	LastWeighingAt *time.Time `db:"last_weighing_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// Weighing is an immutable completed report row. Corrections are new rows,
// never updates.
type Weighing struct {
	ID               int64     `db:"id"`
	DriverPhone      string    `db:"driver_phone"`
	TruckNumber      string    `db:"truck_number"`
	DriverName       string    `db:"driver_name"`
	ClientName       string    `db:"client_name"`
	PreviousWeight   float64   `db:"previous_weight"`
	CurrentWeight    float64   `db:"current_weight"`
	WeightDifference float64   `db:"weight_difference"`
	StationName      string    `db:"station_name"`
	PhotoPath        string    `db:"photo_path"`
	CreatedAt        time.Time `db:"created_at"`
}

// WeighingRecord is the validated input promoted into a Weighing row.
// PreviousWeight and the difference are not part of the input: they are
// recomputed inside the commit transaction and are authoritative there.
type WeighingRecord struct {
	DriverPhone   string
	TruckNumber   string
	DriverName    string
	ClientName    string
	CurrentWeight float64
	StationName   string
	PhotoPath     string
}

// Session is one active conversation flow per user. A new SetSession fully
// replaces the prior row.
type Session struct {
	Phone     string          `db:"phone"`
	State     string          `db:"state"`
	Draft     json.RawMessage `db:"draft"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// StatRow is one aggregate line of a statistics grouping.
type StatRow struct {
	Key     string  `db:"key"`
	Label   string  `db:"label"`
	Count   int64   `db:"cnt"`
	Total   float64 `db:"total"`
	Average float64 `db:"avg"`
}

// Statistics holds weighing aggregates grouped by driver, truck and client.
type Statistics struct {
	ByDriver []StatRow
	ByTruck  []StatRow
	ByClient []StatRow
}

// Postgres implements the bot store contract over sqlx.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an already connected pool.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}
