package internal

const (
	COOKIE_ACCESS_TOKEN_NAME = "permitflow_at"
)
