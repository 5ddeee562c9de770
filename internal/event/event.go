package event

type Type string

const (
	TypeRequestSubmitted Type = "access_request.submitted"
	TypeRequestApproved  Type = "access_request.approved"
	TypeRequestRejected  Type = "access_request.rejected"
	TypeUserProvisioned  Type = "user.provisioned"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
