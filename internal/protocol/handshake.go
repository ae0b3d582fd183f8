package protocol

// Operation modes negotiated during the handshake.
const (
	ModeStepByStep = "step-by-step" // effective window of 1, send-and-wait
	ModeBurst      = "burst"        // negotiated window size
)

// Reliability strategies negotiated during the handshake.
const (
	ProtoGBN = "gbn" // Go-Back-N: cumulative ACKs, window-wide retransmit
	ProtoSR  = "sr"  // Selective Repeat: per-frame ACKs and retransmit
)

// Handshake status values.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
)

// SynPayload is the JSON body of a SYN frame: the parameters the client
// requests for the session.
type SynPayload struct {
	OperationMode string `json:"operation_mode"`
	MaxSize       int    `json:"max_size"`
	Protocol      string `json:"protocol"`
	WindowSize    int    `json:"window_size,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
}

// SynAckPayload is the JSON body of the handshake acknowledgment, carried on
// the ACK tag. It echoes the negotiated (possibly clamped) parameters and
// assigns the session id.
type SynAckPayload struct {
	Status        string `json:"status"`
	OperationMode string `json:"operation_mode"`
	MaxSize       int    `json:"max_size"`
	Protocol      string `json:"protocol"`
	SessionID     string `json:"session_id,omitempty"`
	WindowSize    int    `json:"window_size,omitempty"`
	Message       string `json:"message,omitempty"`
}

// AckFinalPayload is the JSON body of an ACK_FINAL frame. The session id
// must match the one assigned in the SYN-ACK.
type AckFinalPayload struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message,omitempty"`
}
