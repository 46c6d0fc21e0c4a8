package entity

// User is a school directory record. The messaging core reads it to label
// participants and resolve broadcast audiences; it never writes it.
type User struct {
	ID        string `json:"id"`
	SchoolID  string `json:"school_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Class is a school class with an enrolled student roster
type Class struct {
	ID       string `json:"id"`
	SchoolID string `json:"school_id"`
	Name     string `json:"name"`
}
