package dtos

type IntakeRequest struct {
	ExternalID string `json:"external_id" validate:"required,max=64"`
	Name       string `json:"name" validate:"max=255"`
	Source     string `json:"source" validate:"omitempty,oneof=whatsapp referral advertising fair phone web other"`
	Interest   string `json:"interest" validate:"max=255"`
	Note       string `json:"note" validate:"max=2000"`
}

type AssignUserRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type SimulateRequest struct {
	Leads int `json:"leads" validate:"required,gt=0"`
}

type VisibilityResponse struct {
	ViewerID int64   `json:"viewer_id"`
	Mode     string  `json:"mode"`
	All      bool    `json:"all"`
	UserIDs  []int64 `json:"user_ids"`
	Degraded string  `json:"degraded,omitempty"`
}

type RejectResponse struct {
	LeadID int64  `json:"lead_id"`
	Status string `json:"status"`
}
