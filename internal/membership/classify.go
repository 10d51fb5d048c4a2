package membership

// Chat member statuses reported by the Bot API.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// Classify reports whether status counts as membership. A restricted user
// is a member only while the API says is_member is true.
func Classify(status string, isMember *bool) bool {
	switch status {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	case StatusRestricted:
		return isMember != nil && *isMember
	default:
		return false
	}
}
