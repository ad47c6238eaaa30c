package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ads/dental/internal/domain/billing"
	"github.com/ads/dental/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

const apptCols = `a.id, a.date_time, a.status, a.patient_id, a.dentist_id, a.surgery_id, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (AppointmentRecord, error) {
	var rec AppointmentRecord
	err := row.Scan(&rec.ID, &rec.DateTime, &rec.Status, &rec.PatientID, &rec.DentistID,
		&rec.SurgeryID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	rec := a.Record()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, date_time, status, patient_id, dentist_id, surgery_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.DateTime, rec.Status, rec.PatientID, rec.DentistID, rec.SurgeryID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return r.saveBill(ctx, rec.ID, rec.Bill)
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	rec := a.Record()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET date_time=$2, status=$3, patient_id=$4, dentist_id=$5, surgery_id=$6, updated_at=$7
		WHERE id = $1`,
		rec.ID, rec.DateTime, rec.Status, rec.PatientID, rec.DentistID, rec.SurgeryID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update appointment %s: %w", rec.ID, db.ErrNotFound)
	}
	return r.saveBill(ctx, rec.ID, rec.Bill)
}

// saveBill replaces a superseded bill, refreshes the status of the current one
// and appends payments not yet stored. Payments are immutable, so existing
// rows are left alone.
func (r *appointmentRepoPG) saveBill(ctx context.Context, appointmentID uuid.UUID, b *billing.Bill) error {
	if b == nil {
		return nil
	}
	rec := b.Record()
	q := r.conn(ctx)

	if _, err := q.Exec(ctx, `DELETE FROM bill WHERE appointment_id = $1 AND id <> $2`, appointmentID, rec.ID); err != nil {
		return fmt.Errorf("remove superseded bill: %w", err)
	}

	_, err := q.Exec(ctx, `
		INSERT INTO bill (id, appointment_id, total_amount, currency_code, currency_symbol,
			billing_date, due_date, payment_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET payment_status = EXCLUDED.payment_status`,
		rec.ID, appointmentID, rec.TotalAmount.Amount(), rec.TotalAmount.CurrencyCode(), rec.TotalAmount.CurrencySymbol(),
		rec.BillingDate, rec.DueDate, rec.PaymentStatus)
	if err != nil {
		return fmt.Errorf("upsert bill: %w", err)
	}

	for _, p := range rec.Payments {
		_, err := q.Exec(ctx, `
			INSERT INTO payment (id, bill_id, amount, currency_code, currency_symbol, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, rec.ID, p.Amount.Amount(), p.Amount.CurrencyCode(), p.Amount.CurrencySymbol(), p.PaidAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rec, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment a WHERE a.id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err, "get appointment "+id.String())
	}
	appts, err := r.hydrate(ctx, []AppointmentRecord{rec})
	if err != nil {
		return nil, err
	}
	return appts[0], nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete appointment %s: %w", id, db.ErrNotFound)
	}
	return nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, ``, `a.patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *appointmentRepoPG) ListByDentist(ctx context.Context, dentistID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, ``, `a.dentist_id = $1`, []interface{}{dentistID}, limit, offset)
}

func (r *appointmentRepoPG) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, ``, `a.status = $1`, []interface{}{status}, limit, offset)
}

const searchJoins = `
	JOIN patient p ON p.id = a.patient_id
	LEFT JOIN dentist d ON d.id = a.dentist_id
	JOIN surgery s ON s.id = a.surgery_id
	LEFT JOIN bill b ON b.appointment_id = a.id`

func (r *appointmentRepoPG) Search(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := `1=1`
	var args []interface{}
	idx := 1
	add := func(cond string, v interface{}) {
		where += fmt.Sprintf(` AND `+cond, idx)
		args = append(args, v)
		idx++
	}

	if !f.from.IsZero() {
		add(`a.date_time >= $%d`, f.from)
	}
	if !f.to.IsZero() {
		add(`a.date_time < $%d`, f.to)
	}
	if f.Status != "" {
		add(`a.status = $%d`, f.Status)
	}
	if f.PatientEmail != "" {
		add(`LOWER(p.email) = LOWER($%d)`, f.PatientEmail)
	}
	if f.DentistEmail != "" {
		add(`LOWER(d.email) = LOWER($%d)`, f.DentistEmail)
	}
	if f.SurgeryCity != "" {
		add(`LOWER(s.city) = LOWER($%d)`, f.SurgeryCity)
	}
	if f.SurgeryCountry != "" {
		add(`LOWER(s.country) = LOWER($%d)`, f.SurgeryCountry)
	}
	if f.PaymentStatus != "" {
		add(`b.payment_status = $%d`, f.PaymentStatus)
	}

	return r.list(ctx, searchJoins, where, args, limit, offset)
}

func (r *appointmentRepoPG) list(ctx context.Context, joins, where string, args []interface{}, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment a `+joins+` WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM appointment a %s WHERE %s ORDER BY a.date_time DESC, a.id LIMIT $%d OFFSET $%d`,
		apptCols, joins, where, n+1, n+2)
	items, err := r.query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var recs []AppointmentRecord
	for rows.Next() {
		rec, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return r.hydrate(ctx, recs)
}

func (r *appointmentRepoPG) AllForPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return r.query(ctx, `SELECT `+apptCols+` FROM appointment a WHERE a.patient_id = $1 ORDER BY a.date_time`, patientID)
}

func (r *appointmentRepoPG) CountForDentistInRange(ctx context.Context, dentistID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE dentist_id = $1 AND date_time >= $2 AND date_time <= $3 AND id <> $4`,
		dentistID, start, end, excludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dentist appointments: %w", err)
	}
	return n, nil
}

func (r *appointmentRepoPG) ListWithOverdueBills(ctx context.Context, today time.Time) ([]*Appointment, error) {
	return r.query(ctx, `
		SELECT `+apptCols+` FROM appointment a
		JOIN bill b ON b.appointment_id = a.id
		WHERE b.payment_status <> 'PAID' AND b.due_date < $1
		ORDER BY b.due_date, a.id`, billing.DateOf(today))
}

// hydrate loads bills and payments for recs in two queries and builds the
// aggregates.
func (r *appointmentRepoPG) hydrate(ctx context.Context, recs []AppointmentRecord) ([]*Appointment, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID.String()
	}
	bills, err := r.loadBills(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*Appointment, 0, len(recs))
	for _, rec := range recs {
		rec.Bill = bills[rec.ID]
		a, err := RestoreAppointment(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *appointmentRepoPG) loadBills(ctx context.Context, appointmentIDs []string) (map[uuid.UUID]*billing.Bill, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, total_amount::text, currency_code, currency_symbol,
			billing_date, due_date, payment_status
		FROM bill WHERE appointment_id = ANY($1::uuid[])`, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}

	type billRow struct {
		appointmentID uuid.UUID
		rec           billing.BillRecord
	}
	var billRows []billRow
	var billIDs []string
	for rows.Next() {
		var br billRow
		var amount, code, symbol string
		if err := rows.Scan(&br.rec.ID, &br.appointmentID, &amount, &code, &symbol,
			&br.rec.BillingDate, &br.rec.DueDate, &br.rec.PaymentStatus); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		if br.rec.TotalAmount, err = billing.ParseMoney(amount, code, symbol); err != nil {
			rows.Close()
			return nil, fmt.Errorf("bill %s total: %w", br.rec.ID, err)
		}
		billRows = append(billRows, br)
		billIDs = append(billIDs, br.rec.ID.String())
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}
	if len(billRows) == 0 {
		return map[uuid.UUID]*billing.Bill{}, nil
	}

	payments, err := r.loadPayments(ctx, billIDs)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]*billing.Bill, len(billRows))
	for _, br := range billRows {
		br.rec.Payments = payments[br.rec.ID]
		b, err := billing.RestoreBill(br.rec)
		if err != nil {
			return nil, err
		}
		out[br.appointmentID] = b
	}
	return out, nil
}

func (r *appointmentRepoPG) loadPayments(ctx context.Context, billIDs []string) (map[uuid.UUID][]billing.PaymentRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, amount::text, currency_code, currency_symbol, paid_at
		FROM payment WHERE bill_id = ANY($1::uuid[]) ORDER BY seq`, billIDs)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]billing.PaymentRecord)
	for rows.Next() {
		var p billing.PaymentRecord
		var amount, code, symbol string
		if err := rows.Scan(&p.ID, &p.BillID, &amount, &code, &symbol, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		if p.Amount, err = billing.ParseMoney(amount, code, symbol); err != nil {
			return nil, fmt.Errorf("payment %s amount: %w", p.ID, err)
		}
		out[p.BillID] = append(out[p.BillID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return out, nil
}
