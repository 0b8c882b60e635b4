package rooms

import (
	"encoding/json"
	"errors"
	"io"
)

const jsonRpcVersion = "2.0"

type Method string

// Inbound methods, sent by clients.
const (
	JoinRoomMethod       Method = "join-room"
	JoinRequestMethod    Method = "join-request"
	ApproveRequestMethod Method = "approve-request"
	RejectRequestMethod  Method = "reject-request"
	OfferMethod          Method = "offer"
	AnswerMethod         Method = "answer"
	CandidateMethod      Method = "candidate"
)

// Outbound methods, emitted to clients. Offer/answer/candidate are relayed
// under their inbound names.
const (
	JoinApprovedMethod     Method = "join-approved"
	JoinRejectedMethod     Method = "join-rejected"
	UserConnectedMethod    Method = "user-connected"
	UserDisconnectedMethod Method = "user-disconnected"
)

var ErrUnknownEventType = errors.New("unknown event type")

type Event interface {
	GetMethod() Method
	ToJSON() ([]byte, error)
}

type jsonRpcHead struct {
	Version string `json:"jsonrpc"`
	Method  Method `json:"method"`
}

type jsonRpc struct {
	jsonRpcHead
	Params json.RawMessage `json:"params"`
}

// JoinRoomParams carries a request to enter a room. The userId field is
// accepted on the wire for client compatibility but the coordinator always
// uses the identity bound to the connection at upgrade time.
type JoinRoomParams struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

type JoinRequestParams struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"name"`
}

// AdmissionParams drives approve-request / reject-request and carries
// join-approved / join-rejected back out.
type AdmissionParams struct {
	RoomID             string `json:"roomId"`
	TargetConnectionID string `json:"connectionId,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// SignalParams is the relay envelope. Payload is opaque: it is forwarded
// byte-for-byte and never decoded.
type SignalParams struct {
	TargetConnectionID string          `json:"targetConnectionId,omitempty"`
	SourceConnectionID string          `json:"sourceConnectionId,omitempty"`
	Payload            json.RawMessage `json:"payload"`
}

type PresenceParams struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId,omitempty"`
	ConnectionID string `json:"connectionId"`
}

// HostJoinRequestParams is the join-request event as seen by the host.
type HostJoinRequestParams struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"name"`
	ConnectionID string `json:"connectionId"`
}

// EventFromReader decodes one inbound client event.
func EventFromReader(reader io.Reader) (Event, error) {
	ev := &jsonRpc{}

	if err := json.NewDecoder(reader).Decode(ev); err != nil {
		return nil, err
	}

	switch ev.Method {
	case JoinRoomMethod:
		p := &JoinRoomParams{}
		if err := json.Unmarshal(ev.Params, p); err != nil {
			return nil, err
		}
		return &JoinRoomEvent{head(JoinRoomMethod), p}, nil
	case JoinRequestMethod:
		p := &JoinRequestParams{}
		if err := json.Unmarshal(ev.Params, p); err != nil {
			return nil, err
		}
		return &JoinRequestEvent{head(JoinRequestMethod), p}, nil
	case ApproveRequestMethod:
		p := &AdmissionParams{}
		if err := json.Unmarshal(ev.Params, p); err != nil {
			return nil, err
		}
		return &AdmissionEvent{head(ApproveRequestMethod), p}, nil
	case RejectRequestMethod:
		p := &AdmissionParams{}
		if err := json.Unmarshal(ev.Params, p); err != nil {
			return nil, err
		}
		return &AdmissionEvent{head(RejectRequestMethod), p}, nil
	case OfferMethod, AnswerMethod, CandidateMethod:
		p := &SignalParams{}
		if err := json.Unmarshal(ev.Params, p); err != nil {
			return nil, err
		}
		return &SignalEvent{head(ev.Method), p}, nil
	default:
		return nil, ErrUnknownEventType
	}
}

func head(m Method) jsonRpcHead {
	return jsonRpcHead{Version: jsonRpcVersion, Method: m}
}

type JoinRoomEvent struct {
	jsonRpcHead
	Params *JoinRoomParams `json:"params"`
}

func (e JoinRoomEvent) GetMethod() Method { return e.Method }

func (e JoinRoomEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type JoinRequestEvent struct {
	jsonRpcHead
	Params *JoinRequestParams `json:"params"`
}

func (e JoinRequestEvent) GetMethod() Method { return e.Method }

func (e JoinRequestEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type AdmissionEvent struct {
	jsonRpcHead
	Params *AdmissionParams `json:"params"`
}

func NewJoinApprovedEvent(roomID string) *AdmissionEvent {
	return &AdmissionEvent{head(JoinApprovedMethod), &AdmissionParams{RoomID: roomID}}
}

func NewJoinRejectedEvent(roomID, reason string) *AdmissionEvent {
	return &AdmissionEvent{head(JoinRejectedMethod), &AdmissionParams{RoomID: roomID, Reason: reason}}
}

func (e AdmissionEvent) GetMethod() Method { return e.Method }

func (e AdmissionEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type SignalEvent struct {
	jsonRpcHead
	Params *SignalParams `json:"params"`
}

// NewSignalEvent builds the relayed form of an offer/answer/candidate: the
// target field is dropped, the source is stamped, the payload is untouched.
func NewSignalEvent(method Method, sourceConnectionID string, payload json.RawMessage) *SignalEvent {
	return &SignalEvent{head(method), &SignalParams{
		SourceConnectionID: sourceConnectionID,
		Payload:            payload,
	}}
}

func (e SignalEvent) GetMethod() Method { return e.Method }

func (e SignalEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type PresenceEvent struct {
	jsonRpcHead
	Params *PresenceParams `json:"params"`
}

func NewUserConnectedEvent(roomID, userID, connectionID string) *PresenceEvent {
	return &PresenceEvent{head(UserConnectedMethod), &PresenceParams{
		RoomID:       roomID,
		UserID:       userID,
		ConnectionID: connectionID,
	}}
}

func NewUserDisconnectedEvent(roomID, connectionID string) *PresenceEvent {
	return &PresenceEvent{head(UserDisconnectedMethod), &PresenceParams{
		RoomID:       roomID,
		ConnectionID: connectionID,
	}}
}

func (e PresenceEvent) GetMethod() Method { return e.Method }

func (e PresenceEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type HostJoinRequestEvent struct {
	jsonRpcHead
	Params *HostJoinRequestParams `json:"params"`
}

func NewHostJoinRequestEvent(roomID, userID, displayName, connectionID string) *HostJoinRequestEvent {
	return &HostJoinRequestEvent{head(JoinRequestMethod), &HostJoinRequestParams{
		RoomID:       roomID,
		UserID:       userID,
		DisplayName:  displayName,
		ConnectionID: connectionID,
	}}
}

func (e HostJoinRequestEvent) GetMethod() Method { return e.Method }

func (e HostJoinRequestEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }
