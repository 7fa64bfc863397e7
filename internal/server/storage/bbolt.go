package storage

import (
	"bytes"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"telechat/internal/models"
)

var (
	bucketSessions = []byte("sessions")
	bucketMessages = []byte("messages")
	bucketUsers    = []byte("users")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser stores a participant, assigning an id when it has none.
func (s *BboltStorage) UpsertUser(user models.User) (models.User, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if user.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			user.ID = int(seq)
		}
		dbUser := &DBUser{ID: user.ID, Name: user.Name, Role: string(user.Role)}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
	return user, err
}

// FindUser returns the stored participant with the given name and role.
func (s *BboltStorage) FindUser(name string, role models.Role) (models.User, error) {
	var found *models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.Name == name && dbUser.Role == string(role) {
				found = &models.User{ID: dbUser.ID, Name: dbUser.Name, Role: models.Role(dbUser.Role)}
			}
			return nil
		})
	})
	if err != nil {
		return models.User{}, err
	}
	if found == nil {
		return models.User{}, models.ErrNotFound
	}
	return *found, nil
}

// CreateSession opens a new active consultation session.
func (s *BboltStorage) CreateSession(doctorID, userID int) (models.Session, error) {
	var session models.Session
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		dbSession := &DBSession{
			ID:       int(seq),
			DoctorID: doctorID,
			UserID:   userID,
			StatusID: int(models.SessionStatusActive),
		}
		data, err := dbSession.MarshalBinary()
		if err != nil {
			return err
		}
		if err := b.Put(dbSession.Key(), data); err != nil {
			return err
		}
		session = toSession(dbSession)
		return nil
	})
	return session, err
}

// GetSession loads one session with its full transcript.
func (s *BboltStorage) GetSession(id int) (models.Session, error) {
	var session models.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbSession, err := getSession(tx, id)
		if err != nil {
			return err
		}
		session = toSession(dbSession)

		prefix := intKey(id)
		c := tx.Bucket(bucketMessages).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			session.Messages = append(session.Messages, models.Message{
				SenderID:   dbMsg.SenderID,
				Kind:       models.MessageKind(dbMsg.Kind),
				Body:       dbMsg.Body,
				Attachment: dbMsg.Attachment,
				CreatedAt:  time.Unix(dbMsg.CreatedAt, 0),
			})
		}
		return nil
	})
	return session, err
}

// EndSession marks a session ended. Ending an already ended session is not
// an error.
func (s *BboltStorage) EndSession(id int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSession, err := getSession(tx, id)
		if err != nil {
			return err
		}
		dbSession.StatusID = int(models.SessionStatusEnded)
		return putSession(tx, dbSession)
	})
}

// AppendMessage persists one content or alert entry of a session transcript.
// Typing frames are never stored.
func (s *BboltStorage) AppendMessage(sessionID int, msg models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		dbMsg := &DBMessage{
			SessionID:  sessionID,
			Seq:        seq,
			SenderID:   msg.SenderID,
			Kind:       int(msg.Kind),
			Body:       msg.Body,
			Attachment: msg.Attachment,
			CreatedAt:  msg.CreatedAt.Unix(),
		}
		data, err := dbMsg.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbMsg.Key(), data)
	})
}

// SetPrescription stores the session's prescription, creating or updating
// the zero-or-one record.
func (s *BboltStorage) SetPrescription(sessionID int, p models.Prescription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSession, err := getSession(tx, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		if dbSession.Prescription == nil {
			dbSession.Prescription = &DBPrescription{ID: sessionID, CreatedAt: now}
		}
		dbSession.Prescription.Medicines = p.Medicines
		dbSession.Prescription.Notes = p.Notes
		dbSession.Prescription.UpdatedAt = now
		return putSession(tx, dbSession)
	})
}

// SetSickLeave stores the session's sick leave certificate.
func (s *BboltStorage) SetSickLeave(sessionID int, f models.SickLeaveForm) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbSession, err := getSession(tx, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		if dbSession.SickLeave == nil {
			dbSession.SickLeave = &DBSickLeave{ID: sessionID, CreatedAt: now}
		}
		dbSession.SickLeave.Diagnosis = f.Diagnosis
		dbSession.SickLeave.StartDate = f.StartDate
		dbSession.SickLeave.EndDate = f.EndDate
		dbSession.SickLeave.UpdatedAt = now
		return putSession(tx, dbSession)
	})
}

func getSession(tx *bbolt.Tx, id int) (*DBSession, error) {
	data := tx.Bucket(bucketSessions).Get(intKey(id))
	if data == nil {
		return nil, models.ErrNotFound
	}
	var dbSession DBSession
	if err := dbSession.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &dbSession, nil
}

func putSession(tx *bbolt.Tx, dbSession *DBSession) error {
	data, err := dbSession.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSessions).Put(dbSession.Key(), data)
}

func toSession(dbSession *DBSession) models.Session {
	session := models.Session{
		ID:       dbSession.ID,
		DoctorID: dbSession.DoctorID,
		UserID:   dbSession.UserID,
		StatusID: models.SessionStatus(dbSession.StatusID),
	}
	if p := dbSession.Prescription; p != nil {
		session.Prescription = &models.Prescription{
			ID:        p.ID,
			SessionID: dbSession.ID,
			Medicines: p.Medicines,
			Notes:     p.Notes,
			CreatedAt: time.Unix(p.CreatedAt, 0),
			UpdatedAt: time.Unix(p.UpdatedAt, 0),
		}
	}
	if f := dbSession.SickLeave; f != nil {
		session.SickLeave = &models.SickLeaveForm{
			ID:        f.ID,
			SessionID: dbSession.ID,
			Diagnosis: f.Diagnosis,
			StartDate: f.StartDate,
			EndDate:   f.EndDate,
			CreatedAt: time.Unix(f.CreatedAt, 0),
			UpdatedAt: time.Unix(f.UpdatedAt, 0),
		}
	}
	return session
}
