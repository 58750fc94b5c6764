package config

import "time"

const (
	// Runtime settings keys
	SettingCommissionRate = "commission_rate"

	// Lease key prefix for gift acceptance
	GiftAcceptLockPrefix = "gift-accept:"

	// Database pool
	DBMaxConns = 20
	DBMinConns = 5

	// HTTP server timeouts
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second

	// Ops log delivery timeout
	OpsLogTimeout = 10 * time.Second

	// Websocket keepalive
	EventsPingInterval = 25 * time.Second

	// Rate limit window
	RateLimitWindow = time.Minute

	// Sessions returned by billing scans
	BillingBatchSize = 500

	// Pending gift requests returned to a client
	PendingGiftsLimit = 50
)
