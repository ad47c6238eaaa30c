// Package directory holds the read-mostly reference data the scheduler looks
// up: patients, dentists and surgeries.
package directory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Email       string     `db:"email" json:"email"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

func (p *Patient) FullName() string { return fullName(p.FirstName, p.LastName) }

// HasEmail compares case-insensitively, ignoring surrounding space.
func (p *Patient) HasEmail(email string) bool {
	return sameEmail(p.Email, email)
}

// Dentist maps to the dentist table.
type Dentist struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FirstName      string    `db:"first_name" json:"first_name"`
	LastName       string    `db:"last_name" json:"last_name"`
	Email          string    `db:"email" json:"email"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (d *Dentist) FullName() string { return fullName(d.FirstName, d.LastName) }

func (d *Dentist) HasEmail(email string) bool {
	return sameEmail(d.Email, email)
}

// Address is embedded in Surgery.
type Address struct {
	Street  *string `db:"street" json:"street,omitempty"`
	City    *string `db:"city" json:"city,omitempty"`
	ZipCode *string `db:"zip_code" json:"zip_code,omitempty"`
	Country *string `db:"country" json:"country,omitempty"`
}

// Surgery is a clinic location where appointments take place.
type Surgery struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   Address   `json:"address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func sameEmail(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
