package model

import "time"

// Participant is one enrolled expert. IDs are sequential study codes in the
// form P00001, assigned by the store at registration.
type Participant struct {
	ID        string    `json:"id"`
	Profile   *Profile  `json:"profile,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the free-form clinical background form filled in at enrollment.
// All fields are self-reported and optional except Role.
type Profile struct {
	Role            string `json:"role"`
	YearsExperience int    `json:"years_experience,omitempty"`
	Specialty       string `json:"specialty,omitempty"`
	Notes           string `json:"notes,omitempty"`
}
