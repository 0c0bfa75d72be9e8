package domain

import (
	"strings"
	"time"
)

// ChatRoom definition chat room, exactly one patient and one doctor
type ChatRoom struct {
	ID          string    `bson:"_id" json:"id"`
	PatientID   string    `bson:"patient_id" json:"patient_id"`
	DoctorID    string    `bson:"doctor_id" json:"doctor_id"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
	LastMessage *string   `bson:"last_message" json:"last_message"`
}

// RoomMeta read-only room projection for the chat banner
type RoomMeta struct {
	// CreatedAt is nil when the room does not exist.
	CreatedAt *time.Time `json:"created_at"`
}

const (
	roomPatientPrefix = "patient_"
	roomDoctorSep     = "__doctor_"
)

var roomIDEscaper = strings.NewReplacer("%", "%25", "_", "%5F")

// DeriveRoomID returns the room id of a (patient, doctor) pair.
//
// Both ids are escaped so they contain no '_', which keeps the separator
// unambiguous: distinct ordered pairs never share an id. Ids made of
// letters, digits and '-' appear verbatim ("p7","d3" -> "patient_p7__doctor_d3").
func DeriveRoomID(patientID, doctorID string) string {
	return roomPatientPrefix + roomIDEscaper.Replace(patientID) + roomDoctorSep + roomIDEscaper.Replace(doctorID)
}

// HasMember reports whether userID is the room's patient or doctor.
func (r *ChatRoom) HasMember(userID string) bool {
	return userID != "" && (r.PatientID == userID || r.DoctorID == userID)
}
