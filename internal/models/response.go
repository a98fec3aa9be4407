package models

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusResponse represents a generic status response
type StatusResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WebhookResponse is returned to GitHub for every accepted delivery
type WebhookResponse struct {
	Status     string      `json:"status"`
	Event      string      `json:"event"`
	Action     string      `json:"action,omitempty"`
	DeliveryID string      `json:"delivery_id,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}
