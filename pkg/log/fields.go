package log

// Field names shared by every log line the market writes.
const (
	FieldService = "service"

	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Set on the gin context by the session middleware.
	FieldUserID   = "user_id"
	FieldUsername = "username"

	FieldProductID = "product_id"
	FieldRoom      = "room"
	FieldConnID    = "conn_id"
	FieldChannel   = "channel"
	FieldBackend   = "backend"

	// Audit entries carry log_type=audit so they can be filtered out of the stream.
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
