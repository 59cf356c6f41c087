package bot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akhmetov/weighbot/storage"
)

// Store is the persistence contract the engine drives. Implementations must
// make SaveWeighing transactional: the previous weight and difference are
// recomputed at commit time, and a failed commit leaves nothing behind.
type Store interface {
	GetDriver(ctx context.Context, phone string) (*storage.Driver, error)
	RegisterDriver(ctx context.Context, phone, fullName, personalPhone, truck string) error
	UpdateDriverTruck(ctx context.Context, phone, truck string) error

	GetLastWeight(ctx context.Context, truck string) (float64, error)
	SaveWeighing(ctx context.Context, rec storage.WeighingRecord) (*storage.Weighing, error)

	GetSession(ctx context.Context, phone string) (*storage.Session, error)
	SetSession(ctx context.Context, phone, state string, draft json.RawMessage) error
	ClearSession(ctx context.Context, phone string) error

	GetStatistics(ctx context.Context, since *time.Time) (*storage.Statistics, error)
}
