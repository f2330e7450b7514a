package fleet

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser       Role = "User"
	RoleAdmin      Role = "Admin"
	RoleSuperAdmin Role = "SuperAdmin"
)

var ErrInvalidSession = errors.New("invalid session")

// Session is one of DriverSession, AdminSession or SuperAdminSession.
type Session interface {
	Role() Role
	sealed()
}

// DriverSession belongs to a device reporting for one bus.
type DriverSession struct {
	BusID int
	Zone  string
}

// AdminSession views the roster of a single zone.
type AdminSession struct {
	Zone string
}

// SuperAdminSession views every zone.
type SuperAdminSession struct{}

func (DriverSession) Role() Role     { return RoleUser }
func (AdminSession) Role() Role      { return RoleAdmin }
func (SuperAdminSession) Role() Role { return RoleSuperAdmin }

func (DriverSession) sealed()     {}
func (AdminSession) sealed()      {}
func (SuperAdminSession) sealed() {}

// sessionBlob is the persisted shape: {busId?, zone, role}.
type sessionBlob struct {
	BusID *int   `json:"busId,omitempty"`
	Zone  string `json:"zone,omitempty"`
	Role  Role   `json:"role"`
}

func EncodeSession(s Session) ([]byte, error) {
	var blob sessionBlob
	switch v := s.(type) {
	case DriverSession:
		id := v.BusID
		blob = sessionBlob{BusID: &id, Zone: v.Zone, Role: RoleUser}
	case AdminSession:
		blob = sessionBlob{Zone: v.Zone, Role: RoleAdmin}
	case SuperAdminSession:
		blob = sessionBlob{Role: RoleSuperAdmin}
	case nil:
		return nil, fmt.Errorf("%w: nil session", ErrInvalidSession)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidSession, s)
	}
	return json.Marshal(blob)
}

// DecodeSession parses a persisted blob and enforces that only drivers
// carry a busId.
func DecodeSession(b []byte) (Session, error) {
	var blob sessionBlob
	if err := json.Unmarshal(b, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	switch blob.Role {
	case RoleUser:
		if blob.BusID == nil {
			return nil, fmt.Errorf("%w: role User requires busId", ErrInvalidSession)
		}
		return DriverSession{BusID: *blob.BusID, Zone: blob.Zone}, nil
	case RoleAdmin:
		if blob.BusID != nil {
			return nil, fmt.Errorf("%w: role Admin must not carry busId", ErrInvalidSession)
		}
		return AdminSession{Zone: blob.Zone}, nil
	case RoleSuperAdmin:
		if blob.BusID != nil {
			return nil, fmt.Errorf("%w: role SuperAdmin must not carry busId", ErrInvalidSession)
		}
		return SuperAdminSession{}, nil
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidSession, blob.Role)
}
