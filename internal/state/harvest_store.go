// ./internal/state/harvest_store.go
package state

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// HarvestRecord is one persisted fee-distributing harvest.
type HarvestRecord struct {
	ID               int64     `json:"id"`
	HarvestedAt      time.Time `json:"harvested_at"`
	Profit           string    `json:"profit"`
	Fee              string    `json:"fee"`
	CumulativeProfit string    `json:"cumulative_profit"`
}

// HarvestStore persists harvest records to Postgres. It satisfies the
// vault's HarvestStore hook.
type HarvestStore struct{}

// NewHarvestStore returns a store writing to the global database connection.
func NewHarvestStore() *HarvestStore {
	return &HarvestStore{}
}

func (s *HarvestStore) SaveHarvest(profit, fee sdkmath.Int, timestamp time.Time, cumulative sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	stmt := `
		INSERT INTO harvest_records (harvested_at, profit, fee, cumulative_profit)
		VALUES ($1, $2, $3, $4)
		RETURNING harvest_id;`

	var id int64
	err := DB.QueryRow(stmt, timestamp, profit.String(), fee.String(), cumulative.String()).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert harvest record: %w", err)
	}

	log.Info().
		Int64("harvest_id", id).
		Str("profit", profit.String()).
		Str("fee", fee.String()).
		Msg("Harvest record saved")
	return nil
}

// ListHarvests returns the most recent harvest records, newest first.
func ListHarvests(limit int) ([]HarvestRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT harvest_id, harvested_at, profit, fee, cumulative_profit
		FROM harvest_records
		ORDER BY harvested_at DESC, harvest_id DESC
		LIMIT $1;`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query harvest records: %w", err)
	}
	defer rows.Close()

	records := make([]HarvestRecord, 0, limit)
	for rows.Next() {
		var r HarvestRecord
		if err := rows.Scan(&r.ID, &r.HarvestedAt, &r.Profit, &r.Fee, &r.CumulativeProfit); err != nil {
			return nil, fmt.Errorf("failed to scan harvest row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate harvest rows: %w", err)
	}
	return records, nil
}
