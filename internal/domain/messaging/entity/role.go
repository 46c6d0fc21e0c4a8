package entity

// Role is a directory role within a school
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Capabilities is the capability set derived from a role. It is consumed by
// the UI for gating and enforced again inside the messaging core.
type Capabilities struct {
	CanSendAnnouncement bool `json:"can_send_announcement"`
	CanSendToClass      bool `json:"can_send_to_class"`
	CanModerateMessages bool `json:"can_moderate_messages"`
}

// CapabilitiesFor maps a role to its capability set. Unknown or missing roles
// yield no capabilities (fail closed).
func CapabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleAdmin:
		return Capabilities{
			CanSendAnnouncement: true,
			CanSendToClass:      true,
			CanModerateMessages: true,
		}
	case RoleTeacher:
		return Capabilities{
			CanSendAnnouncement: true,
			CanSendToClass:      true,
		}
	default:
		return Capabilities{}
	}
}

// CanAnnounceTo reports whether a sender role may target the given roles with
// an announcement. Teachers are limited to student and parent audiences;
// admins are unrestricted.
func CanAnnounceTo(sender Role, targets []Role) bool {
	if !CapabilitiesFor(sender).CanSendAnnouncement {
		return false
	}
	if sender == RoleAdmin {
		return true
	}
	for _, t := range targets {
		if t != RoleStudent && t != RoleParent {
			return false
		}
	}
	return true
}
