// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	CIDS_HOST="0.0.0.0"
//	CIDS_PORT="8080"
//	CIDS_HEALTH_PORT="9090"
//	CIDS_READ_TIMEOUT="15s"
//	CIDS_WRITE_TIMEOUT="15s"
//
// Database and Redis settings:
//
//	CIDS_POSTGRES_URL="postgres://localhost/cids"
//	CIDS_POSTGRES_MAX_CONNS="25"
//	CIDS_REDIS_URL="localhost:6379"
//	CIDS_REDIS_POOL_SIZE="10"
//
// Discovery settings:
//
//	CIDS_DISCOVERY_HEALTH_TIMEOUT="5s"
//	CIDS_DISCOVERY_FETCH_TIMEOUT="30s"
//	CIDS_DISCOVERY_MAX_ATTEMPTS="3"
//	CIDS_DISCOVERY_CACHE_TTL="60m"
//	CIDS_DISCOVERY_CRON="@hourly"
//
// Token settings:
//
//	CIDS_TOKEN_ISSUER="cids"
//	CIDS_TOKEN_AUDIENCE="cids-clients"
//	CIDS_SIGNING_KEY_PATH="/etc/cids/signing.pem"
//	CIDS_ACCESS_TOKEN_TTL="10m"
//	CIDS_REFRESH_TOKEN_TTL="720h"
//
// Policy and observability settings:
//
//	CIDS_ROLE_MAPPING_PATH="/etc/cids/role-mappings.yaml"
//	CIDS_TOKEN_TEMPLATE_PATH="/etc/cids/token-templates.yaml"
//	CIDS_LOG_LEVEL="info"  # debug, info, warn, error
//	CIDS_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/registry: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
