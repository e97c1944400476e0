package v1

type InterruptionNoticeRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
	Reason     string `json:"reason"`
}

type InterruptionNoticeResponseData struct {
	EventID string `json:"event_id,omitempty"`
}

type InterruptionNoticeResponse struct {
	Response
	Data InterruptionNoticeResponseData
}
