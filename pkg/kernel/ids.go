package kernel

// UserID is the opaque, stable identifier of a user. It is owned by the user
// directory; the credential layer only carries it around.
type UserID string

func NewUserID(id string) UserID { return UserID(id) }
func (u UserID) String() string  { return string(u) }
func (u UserID) IsEmpty() bool   { return string(u) == "" }
