// Package auth holds the caller identity model and the access gate that
// decides which principals may read which device's data.
package auth

// Role classifies a principal. The identity service issues exactly two
// roles: clinical staff (operator) and patients (subject).
type Role string

const (
	// RoleOperator is clinical staff with unrestricted device visibility
	// and command rights.
	RoleOperator Role = "OPERATOR"
	// RoleSubject is a patient restricted to their own assigned device.
	RoleSubject Role = "SUBJECT"
)

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleSubject:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller's identity as issued by the
// external identity service. It is read-only input attached to each
// request; this service never creates or mutates principals.
type Principal struct {
	ID               string `mapstructure:"id" json:"id"`
	Role             Role   `mapstructure:"role" json:"role"`
	AssignedDeviceID string `mapstructure:"assignedDeviceId" json:"assignedDeviceId,omitempty"`
}

// CanAccessDevice is the access gate: it reports whether the principal may
// read data scoped to the given device. Operators may read everything;
// subjects only their assigned device. Unknown roles are denied.
func CanAccessDevice(p Principal, deviceID string) bool {
	switch p.Role {
	case RoleOperator:
		return true
	case RoleSubject:
		return p.AssignedDeviceID != "" && p.AssignedDeviceID == deviceID
	default:
		return false
	}
}
