package s3

// Config represents the S3 source configuration
type Config struct {
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to every cache key to form the object key.
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	MaxRetries      int    `yaml:"max_retries"`
}

// NewDefaultConfig returns a config for us-east-1 with SDK retries kept
// low, since the network tier runs its own retryer.
func NewDefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		Prefix:     "tiercache/",
		MaxRetries: 1,
	}
}
