package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// SessionStatus mirrors the backend's consultation_session_status_id column.
type SessionStatus int

const (
	SessionStatusActive SessionStatus = 1
	SessionStatusEnded  SessionStatus = 2
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Session represents one consultation chat room between a patient and a doctor.
type Session struct {
	ID           int            `json:"id"`
	DoctorID     int            `json:"doctor_id"`
	UserID       int            `json:"user_id"`
	StatusID     SessionStatus  `json:"consultation_session_status_id"`
	Messages     []Message      `json:"messages,omitempty"`
	Prescription *Prescription  `json:"prescription,omitempty"`
	SickLeave    *SickLeaveForm `json:"sick_leave_form,omitempty"`
}

func (s *Session) Active() bool {
	return s.StatusID == SessionStatusActive
}

// Counterpart returns the other participant's user id.
func (s *Session) Counterpart(userID int) int {
	if userID == s.DoctorID {
		return s.UserID
	}
	return s.DoctorID
}

type MessageKind int

const (
	MessageKindChat  MessageKind = 1
	MessageKindAlert MessageKind = 2
)

// Message is one persisted entry of a session transcript.
// There is no server-assigned message id on the wire, so entries cannot be
// deduplicated; the stream log is append-only by arrival order.
type Message struct {
	SenderID   int         `json:"sender_id"`
	Kind       MessageKind `json:"message_type"`
	Body       string      `json:"message"`
	Attachment string      `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// HasContent reports whether the message carries chat text or an attachment.
func (m Message) HasContent() bool {
	return m.Body != "" || m.Attachment != ""
}

// Frame is one JSON payload on the realtime channel. It is a union of three
// shapes:
//
//   - content frame: message and/or attachment set, message_type = 1
//   - alert frame:   message set to a known alert literal, message_type = 2
//   - typing frame:  only is_typing set
type Frame struct {
	SenderID    int         `json:"sender_id,omitempty"`
	Message     string      `json:"message,omitempty"`
	MessageType MessageKind `json:"message_type,omitempty"`
	Attachment  string      `json:"attachment,omitempty"`
	IsTyping    *bool       `json:"is_typing,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
}

// IsContent reports whether the frame carries chat text or an attachment.
func (f Frame) IsContent() bool {
	return f.Message != "" || f.Attachment != ""
}

// IsTypingFrame reports whether the frame is a typing-status frame: no text,
// no attachment, is_typing present. A frame with none of the three fields is
// neither content nor typing and must be ignored by receivers.
func (f Frame) IsTypingFrame() bool {
	return !f.IsContent() && f.IsTyping != nil
}

func (f Frame) IsAlert() bool {
	return f.IsContent() && f.MessageType == MessageKindAlert
}

// AsMessage converts a content or alert frame to a transcript entry.
func (f Frame) AsMessage() Message {
	createdAt := time.Now()
	if f.CreatedAt != nil {
		createdAt = *f.CreatedAt
	}
	kind := f.MessageType
	if kind == 0 {
		kind = MessageKindChat
	}
	return Message{
		SenderID:   f.SenderID,
		Kind:       kind,
		Body:       f.Message,
		Attachment: f.Attachment,
		CreatedAt:  createdAt,
	}
}

// TypingFrame builds an outbound typing-status frame.
func TypingFrame(typing bool) Frame {
	return Frame{IsTyping: &typing}
}

// AlertKind is the decoded identity of an alert frame. The wire carries the
// literal alert strings below; they are a shared contract with the backend
// and are mapped to an AlertKind once at the boundary.
type AlertKind int

const (
	AlertUnknown AlertKind = iota
	AlertPrescriptionIssued
	AlertPrescriptionUpdated
	AlertSickLeaveIssued
	AlertSickLeaveUpdated
	AlertChatEnded
)

const (
	AlertTextPrescriptionIssued  = "Doctor has issued a prescription"
	AlertTextPrescriptionUpdated = "Doctor has updated the prescription"
	AlertTextSickLeaveIssued     = "Doctor has issued a sick leave certificate"
	AlertTextSickLeaveUpdated    = "Doctor has updated the sick leave certificate"
	AlertTextChatEnded           = "Chat session has ended"
)

var alertKinds = map[string]AlertKind{
	AlertTextPrescriptionIssued:  AlertPrescriptionIssued,
	AlertTextPrescriptionUpdated: AlertPrescriptionUpdated,
	AlertTextSickLeaveIssued:     AlertSickLeaveIssued,
	AlertTextSickLeaveUpdated:    AlertSickLeaveUpdated,
	AlertTextChatEnded:           AlertChatEnded,
}

var alertTexts = map[AlertKind]string{
	AlertPrescriptionIssued:  AlertTextPrescriptionIssued,
	AlertPrescriptionUpdated: AlertTextPrescriptionUpdated,
	AlertSickLeaveIssued:     AlertTextSickLeaveIssued,
	AlertSickLeaveUpdated:    AlertTextSickLeaveUpdated,
	AlertChatEnded:           AlertTextChatEnded,
}

// AlertKindOf maps an alert body to its kind. Bodies that are not an exact
// match of a known literal map to AlertUnknown.
func AlertKindOf(body string) AlertKind {
	if k, ok := alertKinds[body]; ok {
		return k
	}
	return AlertUnknown
}

// AlertFrame builds an outbound alert frame for the given kind.
func AlertFrame(kind AlertKind) Frame {
	return Frame{Message: alertTexts[kind], MessageType: MessageKindAlert}
}

// Prescription is issued by a doctor within a session.
type Prescription struct {
	ID        int       `json:"id"`
	SessionID int       `json:"consultation_session_id"`
	Medicines string    `json:"medicines"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SickLeaveForm is a sick leave certificate issued within a session.
type SickLeaveForm struct {
	ID        int       `json:"id"`
	SessionID int       `json:"consultation_session_id"`
	Diagnosis string    `json:"diagnosis"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a participant account as returned by the backend.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	IsOnline bool   `json:"is_online,omitempty"`
}
