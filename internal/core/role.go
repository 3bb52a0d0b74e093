package core

import "strings"

const (
	RoleSchoolAdmin Role = "school_admin"
	RoleBursar      Role = "bursar"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
	RoleStudent     Role = "student"
)

// Role is the acting user's role within their school.
type Role string

// Identity is the signed-in user as established by the session.
type Identity struct {
	UserID   string
	Name     string
	Role     Role
	SchoolID string
	// Token is the raw session credential forwarded to the fee API.
	Token string
}

// ParseRole maps a session claim to a Role. Unknown values yield "" which holds no permission.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RoleSchoolAdmin, RoleBursar, RoleTeacher, RoleParent, RoleStudent:
		return r
	case "admin", "schooladmin":
		return RoleSchoolAdmin
	default:
		return ""
	}
}

func (r Role) IsSchoolAdmin() bool { return r == RoleSchoolAdmin }

func (r Role) IsParent() bool { return r == RoleParent }

// CanManageFees covers creating and editing fee records.
func (r Role) CanManageFees() bool { return r == RoleSchoolAdmin }

// CanViewFeeInsights gates stats, overdue, recent payments, roster and pending count.
func (r Role) CanViewFeeInsights() bool { return r == RoleSchoolAdmin }

// CanRecordPayments gates the payment recorder.
func (r Role) CanRecordPayments() bool { return r == RoleSchoolAdmin || r == RoleParent }

// CanRecordInPerson gates the InPerson method.
func (r Role) CanRecordInPerson() bool { return r == RoleSchoolAdmin }

// CanVerifyPayments gates the verification screen and its actions.
func (r Role) CanVerifyPayments() bool { return r == RoleSchoolAdmin || r == RoleBursar }

func (r Role) Label() string {
	switch r {
	case RoleSchoolAdmin:
		return "School administrator"
	case RoleBursar:
		return "Bursar"
	case RoleTeacher:
		return "Teacher"
	case RoleParent:
		return "Parent"
	case RoleStudent:
		return "Student"
	default:
		return "Guest"
	}
}

// InitialPaymentStatus is the status a new payment is submitted with.
// Only an administrator recording an in-person payment skips verification.
func InitialPaymentStatus(method PaymentMethod, role Role) PaymentStatus {
	if method == MethodInPerson && role.CanRecordInPerson() {
		return PaymentVerified
	}
	return PaymentPendingVerification
}
