package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sadopc/done/internal/model"
)

// GetSetting returns the stored value for key, or a model.NotFoundError.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.NotFoundError{Kind: "setting", ID: key}
	}
	if err != nil {
		return "", persistErr("get setting "+key, err)
	}
	return value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return persistErr("set setting "+key, err)
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return persistErr("delete setting "+key, err)
}

func (s *Store) GetAllSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, persistErr("list settings", err)
	}
	defer rows.Close()

	var settings []model.Setting
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Key, &st.Value); err != nil {
			return nil, persistErr("scan setting", err)
		}
		settings = append(settings, st)
	}
	return settings, rows.Err()
}
