/*
Package config loads tiercache configuration.

Sources are applied in order of increasing precedence:

 1. NewDefault
 2. a YAML file (LoadFromFile, strict: unknown keys are rejected)
 3. TIERCACHE_* environment variables (LoadFromEnv)

Load runs all three and validates the result.

A minimal file:

	global:
	  log_level: INFO
	cache:
	  memory_limit: 128MB
	  strategy:
	    kind: hybrid
	    capacity: 5000
	    ttl: 10m
	disk:
	  enabled: true
	  compression: zstd
	network:
	  source: valkey
	  valkey:
	    addresses: ["127.0.0.1:6379"]
	    prefix: "layout:"

Environment overrides:

	TIERCACHE_LOG_LEVEL        TIERCACHE_LOG_FORMAT      TIERCACHE_LOG_FILE
	TIERCACHE_ADDRESS          TIERCACHE_MEMORY_LIMIT    TIERCACHE_STRATEGY
	TIERCACHE_CAPACITY         TIERCACHE_TTL             TIERCACHE_SWEEP_INTERVAL
	TIERCACHE_DISK_ENABLED     TIERCACHE_DISK_DIR        TIERCACHE_COMPRESSION
	TIERCACHE_NETWORK_SOURCE   TIERCACHE_NETWORK_TIMEOUT TIERCACHE_VALKEY_ADDRESSES
	TIERCACHE_VALKEY_PASSWORD  TIERCACHE_VALKEY_PREFIX   TIERCACHE_S3_BUCKET
	TIERCACHE_S3_PREFIX        TIERCACHE_S3_REGION       TIERCACHE_S3_ENDPOINT
	TIERCACHE_METRICS_ENABLED

Malformed numeric, boolean or duration overrides are reported as a single
INVALID_CONFIG error rather than silently ignored.
*/
package config
