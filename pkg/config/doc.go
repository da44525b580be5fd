// Package config loads and validates the iuran configuration.
//
// Sources, lowest precedence first: built-in defaults, the YAML file named by
// IURAN_CONFIG_FILE, then IURAN_* environment variables. A .env file in the
// working directory is read into the environment without overriding
// variables that are already set.
//
// Server settings:
//
//	IURAN_HOST="0.0.0.0"
//	IURAN_PORT="8080"
//	IURAN_HEALTH_PORT="9090"
//
// Storage settings:
//
//	IURAN_STORAGE_DRIVER="postgres"  # memory, postgres, sqlite
//	IURAN_DATABASE_URL="postgres://localhost/iuran?sslmode=disable"
//	IURAN_DATABASE_REPLICA_URLS="postgres://replica1/iuran,postgres://replica2/iuran"
//	IURAN_REDIS_URL="redis://localhost:6379/0"
//
// Billing settings:
//
//	IURAN_BILLING_TIMEZONE="Asia/Makassar"
//	IURAN_PREVIEW_TTL="1h"
//
// Scheduler settings:
//
//	IURAN_SCHEDULE="0 6 1 * *"
//	IURAN_SCHEDULER_ACTOR_ID="1"
//
// Observability settings:
//
//	IURAN_LOG_LEVEL="info"
//	IURAN_LOG_FORMAT="json"
//	IURAN_OTEL_ENABLED="true"
//	IURAN_OTEL_ENDPOINT="otel-collector:4317"
//
// The same settings in YAML:
//
//	server:
//	  port: "8080"
//	storage:
//	  driver: postgres
//	  url: postgres://localhost/iuran?sslmode=disable
//	billing:
//	  timezone: Asia/Makassar
//	  preview_ttl: 1h
package config
