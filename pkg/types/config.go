package types

import "time"

type Config struct {
	Environment     string `envconfig:"ENVIRONMENT" default:"development"`
	ServerPort      uint   `envconfig:"SERVER_PORT" default:"8080"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	StoreDriver     string `envconfig:"STORE_DRIVER" default:"postgres"` // postgres | memory
	ReadTimeoutSec  uint   `envconfig:"READ_TIMEOUT_SEC" default:"10"`
	WriteTimeoutSec uint   `envconfig:"WRITE_TIMEOUT_SEC" default:"15"`
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`

	// Document storage
	BlobDriver   string `envconfig:"BLOB_DRIVER" default:"s3"` // s3 | memory
	S3BucketName string `envconfig:"S3_BUCKET_NAME" default:"permit-documents"`

	// OTP
	OtpLength      int           `envconfig:"OTP_LENGTH" default:"6"`
	OtpTTL         time.Duration `envconfig:"OTP_TTL" default:"10m"`
	OtpMaxAttempts int           `envconfig:"OTP_MAX_ATTEMPTS" default:"5"`
	OtpPepper      string        `envconfig:"OTP_PEPPER"`

	DownloadTokenTTL time.Duration `envconfig:"DOWNLOAD_TOKEN_TTL" default:"24h"`
	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"15m"`

	// OTP delivery relay; when empty codes are only logged.
	NotifyWebhookURL    string `envconfig:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `envconfig:"NOTIFY_WEBHOOK_SECRET"`

	// Certificate signing. SigningKeyPEM takes precedence; the HMAC secret
	// exists for local development only.
	SigningKeyPEM     string `envconfig:"SIGNING_KEY_PEM"`
	SigningHMACSecret string `envconfig:"SIGNING_HMAC_SECRET"`
	IssuingAuthority  string `envconfig:"ISSUING_AUTHORITY" default:"Municipal Corporation Building Permission Department"`

	// reset | archive
	ReturningRejectionPolicy string `envconfig:"RETURNING_REJECTION_POLICY" default:"reset"`

	// Payments
	PermitFee           int64  `envconfig:"PERMIT_FEE" default:"5000"`
	PermitCurrency      string `envconfig:"PERMIT_CURRENCY" default:"inr"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	// Officer bearer token verification; disabled when the issuer is empty.
	AuthIssuerURL string `envconfig:"AUTH_ISSUER_URL"`
	AuthRoleClaim string `envconfig:"AUTH_ROLE_CLAIM" default:"custom:role"`

	// Cookie encryption keys (base64 encoded)
	// openssl rand -base64 32
	// to generate values
	CookieHashKey  string `envconfig:"COOKIE_HASH_KEY"`  // 32 or 64 bytes
	CookieBlockKey string `envconfig:"COOKIE_BLOCK_KEY"` // 16, 24, or 32 bytes
}

func (c *Config) Production() bool {
	return c.Environment == "production"
}
