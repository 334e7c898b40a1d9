package domain

import (
	"time"

	"github.com/google/uuid"
)

// Features is an opaque bag of raw clinical fields as submitted by clients.
type Features map[string]interface{}

// Patient represents a stored patient record
type Patient struct {
	ID            uuid.UUID  `json:"id"`
	InputFeatures Features   `json:"input_features"`
	DisplayName   *string    `json:"display_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// PatientCreate is the payload accepted when creating a patient
type PatientCreate struct {
	InputFeatures Features `json:"input_features"`
	DisplayName   *string  `json:"display_name,omitempty"`
}

// PatientUpdate carries a partial update; nil fields are left untouched
type PatientUpdate struct {
	InputFeatures Features `json:"input_features,omitempty"`
	DisplayName   *string  `json:"display_name,omitempty"`
}

// Prediction is a write-once record of a served prediction
type Prediction struct {
	ID            uuid.UUID              `json:"id"`
	InputFeatures Features               `json:"input_features"`
	Prediction    float64                `json:"prediction"`
	Explanation   map[string]interface{} `json:"explanation"`
	CreatedAt     time.Time              `json:"created_at"`
}

// Feedback is a clinician's write-once reaction to a prediction
type Feedback struct {
	ID            uuid.UUID              `json:"id"`
	InputFeatures Features               `json:"input_features"`
	Prediction    *float64               `json:"prediction,omitempty"`
	Explanation   map[string]interface{} `json:"explanation,omitempty"`
	Accepted      *bool                  `json:"accepted,omitempty"`
	Comment       *string                `json:"comment,omitempty"`
	UserEmail     *string                `json:"user_email,omitempty"`
	Rating        *int                   `json:"rating,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// FeedbackCreate is the payload accepted when submitting feedback
type FeedbackCreate struct {
	InputFeatures Features               `json:"input_features"`
	Prediction    *float64               `json:"prediction,omitempty"`
	Explanation   map[string]interface{} `json:"explanation,omitempty"`
	Accepted      *bool                  `json:"accepted,omitempty"`
	Comment       *string                `json:"comment,omitempty"`
	UserEmail     *string                `json:"user_email,omitempty"`
	Rating        *int                   `json:"rating,omitempty"`
}
