package models

import (
	"encoding/json"
	"testing"
)

func TestFrameClassification(t *testing.T) {
	typing := true

	tests := []struct {
		name    string
		frame   Frame
		content bool
		typed   bool
		alert   bool
	}{
		{"text", Frame{Message: "hi", MessageType: MessageKindChat}, true, false, false},
		{"attachment only", Frame{Attachment: "aGk=", MessageType: MessageKindChat}, true, false, false},
		{"typing", Frame{IsTyping: &typing}, false, true, false},
		{"alert", Frame{Message: AlertTextChatEnded, MessageType: MessageKindAlert}, true, false, true},
		{"empty junk", Frame{}, false, false, false},
		{"sender only junk", Frame{SenderID: 3}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.IsContent(); got != tt.content {
				t.Errorf("IsContent: expected %v, got %v", tt.content, got)
			}
			if got := tt.frame.IsTypingFrame(); got != tt.typed {
				t.Errorf("IsTypingFrame: expected %v, got %v", tt.typed, got)
			}
			if got := tt.frame.IsAlert(); got != tt.alert {
				t.Errorf("IsAlert: expected %v, got %v", tt.alert, got)
			}
		})
	}
}

func TestTypingFrameWire(t *testing.T) {
	data, err := json.Marshal(TypingFrame(true))
	if err != nil {
		t.Fatal(err)
	}
	// The typing frame carries only is_typing on the wire.
	want := `{"is_typing":true}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	var decoded Frame
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.IsTypingFrame() || *decoded.IsTyping != true {
		t.Error("round-tripped typing frame lost its shape")
	}
}

func TestAlertKindOf(t *testing.T) {
	tests := map[string]AlertKind{
		AlertTextPrescriptionIssued:  AlertPrescriptionIssued,
		AlertTextPrescriptionUpdated: AlertPrescriptionUpdated,
		AlertTextSickLeaveIssued:     AlertSickLeaveIssued,
		AlertTextSickLeaveUpdated:    AlertSickLeaveUpdated,
		AlertTextChatEnded:           AlertChatEnded,
		"anything else":              AlertUnknown,
		"":                           AlertUnknown,
	}
	for body, want := range tests {
		if got := AlertKindOf(body); got != want {
			t.Errorf("AlertKindOf(%q): expected %d, got %d", body, want, got)
		}
	}
}

func TestSessionCounterpart(t *testing.T) {
	s := Session{ID: 1, DoctorID: 10, UserID: 20}
	if got := s.Counterpart(10); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if got := s.Counterpart(20); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}
