package directory

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ads/dental/internal/platform/db"
)

// Create methods keep an existing row with the same id, so seeding is
// repeatable.

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const patientCols = `id, first_name, last_name, email, phone, date_of_birth, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, email, phone, date_of_birth)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "get patient "+id.String())
	}
	return p, nil
}

// =========== Dentist Repository ===========

type dentistRepoPG struct{ pool *pgxpool.Pool }

func NewDentistRepoPG(pool *pgxpool.Pool) DentistRepository { return &dentistRepoPG{pool: pool} }

func (r *dentistRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const dentistCols = `id, first_name, last_name, email, phone, specialization, created_at`

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	if err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.Specialization, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *dentistRepoPG) Create(ctx context.Context, d *Dentist) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO dentist (id, first_name, last_name, email, phone, specialization)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.Specialization)
	return err
}

func (r *dentistRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	d, err := scanDentist(r.conn(ctx).QueryRow(ctx, `SELECT `+dentistCols+` FROM dentist WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "get dentist "+id.String())
	}
	return d, nil
}

// =========== Surgery Repository ===========

type surgeryRepoPG struct{ pool *pgxpool.Pool }

func NewSurgeryRepoPG(pool *pgxpool.Pool) SurgeryRepository { return &surgeryRepoPG{pool: pool} }

func (r *surgeryRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const surgeryCols = `id, name, phone, street, city, zip_code, country, created_at`

func scanSurgery(row pgx.Row) (*Surgery, error) {
	var s Surgery
	if err := row.Scan(&s.ID, &s.Name, &s.Phone,
		&s.Address.Street, &s.Address.City, &s.Address.ZipCode, &s.Address.Country, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *surgeryRepoPG) Create(ctx context.Context, s *Surgery) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO surgery (id, name, phone, street, city, zip_code, country)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.Name, s.Phone, s.Address.Street, s.Address.City, s.Address.ZipCode, s.Address.Country)
	return err
}

func (r *surgeryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	s, err := scanSurgery(r.conn(ctx).QueryRow(ctx, `SELECT `+surgeryCols+` FROM surgery WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "get surgery "+id.String())
	}
	return s, nil
}
