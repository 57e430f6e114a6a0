// Package backend is the Le Marché Luxe API server, a secondhand luxury
// marketplace priced in UZS.
//
// The binaries live under cmd/:
//
// - cmd/server: HTTP API, WebSocket gateway, background sweepers
// - cmd/migrate: schema migrations
// - cmd/seed: demo listings and generated data
// - cmd/cli: admin client for the HTTP API
//
// Packages under internal/:
//
// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Accounts, JWT sessions, password reset, Google sign-in
// - internal/catalog: Categories, brands, conditions and listing statuses
// - internal/products: Listing lifecycle and search
// - internal/profiles: Profile editing and user search
// - internal/messaging: Buyer/seller conversations and read state
// - internal/websocket: Real-time delivery of messaging events
// - internal/repository: GORM data access
// - internal/search: Elasticsearch indexing and queries
// - internal/storage: S3 image uploads
// - internal/email: SES account emails
// - internal/cache: Redis unread counters, token revocation, rate windows
// - internal/middleware: Request IDs, auth, rate limiting, logging, tracing
// - internal/telemetry: OpenTelemetry setup and business spans
// - internal/metrics: Prometheus collectors
package backend
