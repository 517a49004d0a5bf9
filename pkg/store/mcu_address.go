package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MCUAddressObservation is one recorded sighting of the MCU's reported
// address (from the cmd-channel RSP_GET_MCU_IP_ADDR payload or the
// periodic unsolicited broadcast).
type MCUAddressObservation struct {
	Address    string
	ObservedAt time.Time
}

// RecordMCUAddress appends an observation of the MCU's address.
func (s *Store) RecordMCUAddress(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO mcu_addresses (address) VALUES (?)`, address)
	if err != nil {
		return fmt.Errorf("insert mcu_addresses: %w", err)
	}
	return nil
}

// LatestMCUAddress returns the most recently observed MCU address, or
// sql.ErrNoRows if none has ever been recorded.
func (s *Store) LatestMCUAddress(ctx context.Context) (MCUAddressObservation, error) {
	var obs MCUAddressObservation
	var observedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT address, observed_at FROM mcu_addresses ORDER BY id DESC LIMIT 1
	`).Scan(&obs.Address, &observedAt)
	if err == sql.ErrNoRows {
		return obs, err
	}
	if err != nil {
		return obs, fmt.Errorf("query mcu_addresses: %w", err)
	}
	obs.ObservedAt, _ = time.Parse(time.DateTime, observedAt)
	return obs, nil
}

// RecentMCUAddresses returns the most recent MCU address observations,
// newest first.
func (s *Store) RecentMCUAddresses(ctx context.Context, limit int) ([]MCUAddressObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, observed_at FROM mcu_addresses ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query mcu_addresses: %w", err)
	}
	defer rows.Close()

	var out []MCUAddressObservation
	for rows.Next() {
		var obs MCUAddressObservation
		var observedAt string
		if err := rows.Scan(&obs.Address, &observedAt); err != nil {
			return nil, fmt.Errorf("scan mcu_addresses row: %w", err)
		}
		obs.ObservedAt, _ = time.Parse(time.DateTime, observedAt)
		out = append(out, obs)
	}
	return out, rows.Err()
}
