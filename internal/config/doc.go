// Package config defines configuration structures for the ferry CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (FERRY_ prefix)
//   - YAML configuration file
//
// Later sources override earlier ones: defaults, then the file, then the
// environment, then flags.
//
// # Structure
//
//	type Config struct {
//	    Bucket    string
//	    Gateway   string
//	    BucketID  string
//	    Workers   int
//	    ChunkSize int64
//	    Progress  bool
//	    Timeout   time.Duration
//	    Retry     RetryConfig
//	    Redis     RedisConfig
//	}
package config
