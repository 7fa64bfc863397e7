package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBSession struct {
	ID       int `msgpack:"id"`
	DoctorID int `msgpack:"doctorId"`
	UserID   int `msgpack:"userId"`
	StatusID int `msgpack:"statusId"`

	Prescription *DBPrescription `msgpack:"prescription"`
	SickLeave    *DBSickLeave    `msgpack:"sickLeave"`
}

func (s *DBSession) Key() []byte {
	return intKey(s.ID)
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}

type DBPrescription struct {
	ID        int    `msgpack:"id"`
	Medicines string `msgpack:"medicines"`
	Notes     string `msgpack:"notes"`
	CreatedAt int64  `msgpack:"createdAt"`
	UpdatedAt int64  `msgpack:"updatedAt"`
}

type DBSickLeave struct {
	ID        int    `msgpack:"id"`
	Diagnosis string `msgpack:"diagnosis"`
	StartDate string `msgpack:"startDate"`
	EndDate   string `msgpack:"endDate"`
	CreatedAt int64  `msgpack:"createdAt"`
	UpdatedAt int64  `msgpack:"updatedAt"`
}

type DBMessage struct {
	SessionID  int    `msgpack:"sessionId"`
	Seq        uint64 `msgpack:"seq"`
	SenderID   int    `msgpack:"senderId"`
	Kind       int    `msgpack:"kind"`
	Body       string `msgpack:"body"`
	Attachment string `msgpack:"attachment"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

// Key orders messages by session, then by append sequence.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, uint64(m.SessionID))
	binary.BigEndian.PutUint64(key[8:], m.Seq)
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBUser struct {
	ID   int    `msgpack:"id"`
	Name string `msgpack:"name"`
	Role string `msgpack:"role"`
}

func (u *DBUser) Key() []byte {
	return intKey(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func intKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}
