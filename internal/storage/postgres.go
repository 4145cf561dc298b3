package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/taxi-dispatch/internal/models"
)

// PostgresStore backs the dispatch core with lib/pq. Conditional
// transitions are single UPDATE statements guarded by the expected
// current state; RowsAffected decides the winner of a race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// DB exposes the underlying handle for migrations at boot.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT id, phone, name, role, password_hash, activation, activation_expires_at, created_at
		 FROM users WHERE id = $1`, id))
}

func (p *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return p.scanUser(p.db.QueryRowContext(ctx,
		`SELECT id, phone, name, role, password_hash, activation, activation_expires_at, created_at
		 FROM users WHERE phone = $1`, phone))
}

func (p *PostgresStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var expires sql.NullTime
	err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.Role, &u.PasswordHash, &u.Activation, &expires, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		u.ActivationExpiresAt = &t
	}
	return &u, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users(id, phone, name, role, password_hash, activation, activation_expires_at, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Phone, u.Name, u.Role, u.PasswordHash, u.Activation, nullTime(u.ActivationExpiresAt), u.CreatedAt)
	if isUniqueViolation(err) {
		return models.ErrPhoneTaken
	}
	return err
}

func (p *PostgresStore) SetActivation(ctx context.Context, userID string, state models.ActivationState, expiresAt *time.Time) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET activation = $1, activation_expires_at = $2 WHERE id = $3`,
		state, nullTime(expiresAt), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpsertLocation(ctx context.Context, loc *models.DriverLocation) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO driver_locations(driver_id, lat, lon, available, updated_at)
		 VALUES($1,$2,$3,$4,$5)
		 ON CONFLICT (driver_id) DO UPDATE
		 SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, available = EXCLUDED.available, updated_at = EXCLUDED.updated_at`,
		loc.DriverID, loc.Loc.Lat, loc.Loc.Lon, loc.Available, loc.UpdatedAt)
	return err
}

func (p *PostgresStore) GetLocation(ctx context.Context, driverID string) (*models.DriverLocation, error) {
	var l models.DriverLocation
	err := p.db.QueryRowContext(ctx,
		`SELECT driver_id, lat, lon, available, updated_at FROM driver_locations WHERE driver_id = $1`,
		driverID).Scan(&l.DriverID, &l.Loc.Lat, &l.Loc.Lon, &l.Available, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return &l, nil
}

func (p *PostgresStore) SetAvailability(ctx context.Context, driverID string, available bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE driver_locations SET available = $1 WHERE driver_id = $2`, available, driverID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListAvailable(ctx context.Context, limit int) ([]models.DriverLocation, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT driver_id, lat, lon, available, updated_at
		 FROM driver_locations WHERE available = TRUE LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.DriverLocation
	for rows.Next() {
		var l models.DriverLocation
		if err := rows.Scan(&l.DriverID, &l.Loc.Lat, &l.Loc.Lon, &l.Available, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.RideRequest) error {
	var destLat, destLon sql.NullFloat64
	if r.Dest != nil {
		destLat = sql.NullFloat64{Float64: r.Dest.Lat, Valid: true}
		destLon = sql.NullFloat64{Float64: r.Dest.Lon, Valid: true}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO ride_requests(id, rider_id, pickup_lat, pickup_lon, pickup_address,
		  dest_lat, dest_lon, dest_address, passengers, luggage, status, driver_id, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, r.RiderID, r.Pickup.Lat, r.Pickup.Lon, r.PickupAddress,
		destLat, destLon, nullString(r.DestAddress), r.Passengers, r.Luggage,
		r.Status, nullString(r.DriverID), r.CreatedAt)
	return err
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, rider_id, pickup_lat, pickup_lon, pickup_address,
		        dest_lat, dest_lon, dest_address, passengers, luggage, status, driver_id, created_at
		 FROM ride_requests WHERE id = $1`, id)
	r, err := scanRide(row)
	if err != nil {
		return nil, err
	}
	return r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.RideRequest, error) {
	var r models.RideRequest
	var destLat, destLon sql.NullFloat64
	var destAddr, driverID sql.NullString
	err := row.Scan(&r.ID, &r.RiderID, &r.Pickup.Lat, &r.Pickup.Lon, &r.PickupAddress,
		&destLat, &destLon, &destAddr, &r.Passengers, &r.Luggage, &r.Status, &driverID, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}
	if destLat.Valid && destLon.Valid {
		r.Dest = &models.Coord{Lat: destLat.Float64, Lon: destLon.Float64}
	}
	r.DestAddress = destAddr.String
	r.DriverID = driverID.String
	return &r, nil
}

func (p *PostgresStore) AcceptRide(ctx context.Context, rideID, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_requests SET status = $1, driver_id = $2
		 WHERE id = $3 AND status = $4`,
		models.RideAccepted, driverID, rideID, models.RidePending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *PostgresStore) TransitionRide(ctx context.Context, rideID string, from, to models.RideStatus) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ride_requests SET status = $1 WHERE id = $2 AND status = $3`,
		to, rideID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *PostgresStore) ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRequest, error) {
	return p.listRides(ctx, `rider_id = $1`, riderID, limit)
}

func (p *PostgresStore) ListByDriver(ctx context.Context, driverID string, limit int) ([]models.RideRequest, error) {
	return p.listRides(ctx, `driver_id = $1`, driverID, limit)
}

func (p *PostgresStore) listRides(ctx context.Context, where, arg string, limit int) ([]models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, rider_id, pickup_lat, pickup_lon, pickup_address,
		        dest_lat, dest_lon, dest_address, passengers, luggage, status, driver_id, created_at
		 FROM ride_requests WHERE `+where+` ORDER BY created_at DESC LIMIT $2`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetCode(ctx context.Context, code string) (*models.ActivationCode, error) {
	var c models.ActivationCode
	var driverID sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT code, used, driver_id, expires_at, created_at FROM activation_codes WHERE code = $1`,
		code).Scan(&c.Code, &c.Used, &driverID, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	if driverID.Valid {
		s := driverID.String
		c.DriverID = &s
	}
	return &c, nil
}

func (p *PostgresStore) InsertCode(ctx context.Context, c *models.ActivationCode) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO activation_codes(code, used, driver_id, expires_at, created_at)
		 VALUES($1,$2,$3,$4,$5)`,
		c.Code, c.Used, nullStringPtr(c.DriverID), c.ExpiresAt, c.CreatedAt)
	if isUniqueViolation(err) {
		return models.ErrCodeExists
	}
	return err
}

func (p *PostgresStore) RedeemCode(ctx context.Context, code, driverID string, now time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE activation_codes SET used = TRUE, driver_id = $1
		 WHERE code = $2 AND used = FALSE AND expires_at > $3`,
		driverID, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *PostgresStore) CodeStats(ctx context.Context, now time.Time) (CodeStats, error) {
	var s CodeStats
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE used),
		        COUNT(*) FILTER (WHERE NOT used),
		        COUNT(*) FILTER (WHERE expires_at < $1)
		 FROM activation_codes`, now).Scan(&s.Total, &s.Used, &s.Available, &s.Expired)
	return s, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
