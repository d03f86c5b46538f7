package entity

import "time"

type Role string

const (
	RoleDonor   Role = "donor"
	RolePatient Role = "patient"
)

// BloodTypeUnknown is accepted on requests but always flagged.
const BloodTypeUnknown = "Unknown"

var BloodTypes = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

func IsValidBloodType(bloodType string) bool {
	for _, bt := range BloodTypes {
		if bt == bloodType {
			return true
		}
	}
	return false
}

type Location struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lon  *float64 `json:"lon,omitempty" validate:"omitempty,longitude"`
}

// HasCoordinates reports whether both lat and lon are known.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

type Profile struct {
	ID            string    `json:"id" validate:"required"`
	Name          string    `json:"name" validate:"max=200"`
	Role          Role      `json:"role" validate:"oneof=donor patient"`
	BloodType     string    `json:"blood_type" validate:"omitempty,bloodtype"`
	Location      Location  `json:"location"`
	Email         string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone         string    `json:"phone,omitempty"`
	DonationCount int       `json:"donation_count" validate:"gte=0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (p *Profile) IsDonor() bool {
	return p.Role == RoleDonor
}
