package config

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local" or "gcs".
	BucketName      string `yaml:"bucket_name"`      // Default bucket for GCS; optional sub-directory for local.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS. Empty means application default credentials.
	BaseDir         string `yaml:"base_dir"`         // Root directory (local) or object prefix (GCS).
}

// StoragesConfig holds a map of named storage configurations.
type StoragesConfig map[string]StorageConfig
