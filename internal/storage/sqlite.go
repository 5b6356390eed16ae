package storage

import (
	"fmt"

	"school-device-issuance/internal/config"
)

type SQLiteProvider struct {
	SQLProvider
}

// NewSQLiteProvider opens the SQLite database. _txlock=immediate makes every
// transaction an immediate writer so concurrent assignments for the same
// school serialize instead of both reading the same tag sequence.
func NewSQLiteProvider(config *config.Storage) (*SQLiteProvider, error) {
	dataSource := fmt.Sprintf("file:%s?_fk=1&_txlock=immediate&_busy_timeout=5000", config.SQLite.Path)

	provider, err := NewSQLProvider(config, "sqlite3", dataSource)
	if err != nil {
		return nil, err
	}

	return &SQLiteProvider{SQLProvider: *provider}, nil
}
