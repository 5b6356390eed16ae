package config

type Storage struct {
	SQLite *SQLiteStorage `mapstructure:"local,omitempty"`
	// Memory keeps everything in process memory. Tests and throwaway runs only.
	Memory bool `mapstructure:"memory,omitempty"`
}

type SQLiteStorage struct {
	Path string `mapstructure:"path,omitempty"`
}
