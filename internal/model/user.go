package model

import "time"

// Role is the flat role enum stored in `users.role`.  Roles are not
// hierarchical except that RoleAdmin satisfies every role check.
type Role string

const (
    RoleAthlete   Role = "athlete"
    RoleCoach     Role = "coach"
    RoleCommittee Role = "committee"
    RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleAthlete, RoleCoach, RoleCommittee, RoleAdmin:
        return true
    }
    return false
}

// User represents the subset of the `users` table the auth layer reads.
// The table itself is owned by the CRUD layer; auth only reads the role
// and active flag and reads/writes password_hash.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique login identifier (stored lower-cased).
//  PasswordHash – tagged PBKDF2 hash, a legacy digest, or empty when no
//                 password has been set yet (NULL in the database).
//  Role         – one of athlete, coach, committee, admin.
//  IsActive     – inactive users can neither log in nor authenticate.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash (nullable)
    Role         Role      // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// HasPassword reports whether a password hash has been set.
func (u User) HasPassword() bool { return u.PasswordHash != "" }
