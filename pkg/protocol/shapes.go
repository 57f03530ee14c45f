package protocol

// Media is an optional attachment on a dispatch request. Data is base64.
type Media struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// DispatchRequest is the POST /send body: one outbound batch from the
// dashboard's Comunicados screen.
type DispatchRequest struct {
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
	Media      *Media   `json:"media,omitempty"`
}

// Recipient outcome tags.
const (
	RecipientSent   = "sent"
	RecipientFailed = "failed"
)

// RecipientResult is the per-recipient outcome within a batch.
type RecipientResult struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// DispatchResponse aggregates a batch's outcomes.
type DispatchResponse struct {
	AllSucceeded bool              `json:"allSucceeded"`
	Results      []RecipientResult `json:"results"`
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

// QRResponse is the GET /qr body. Success is false whenever no code is
// pending; that is an expected answer, not an error.
type QRResponse struct {
	Success bool   `json:"success"`
	QR      string `json:"qr,omitempty"`   // PNG data URL for the dashboard
	Code    string `json:"code,omitempty"` // raw pairing code, rendered by the CLI
	Message string `json:"message,omitempty"`
	Status  string `json:"status"`
}

// LogoutResponse is the POST /logout body.
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SendMessageRequest is the legacy single-recipient POST /send-message body.
type SendMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendMessageResponse is the legacy single-recipient send result.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	To        string `json:"to,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the generic error body for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
