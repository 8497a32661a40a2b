package auth

import "github.com/bookstore/services/library/internal/db"

// Operation names a protected or public action of the API.
type Operation string

const (
	OpLogin       Operation = "session.login"
	OpListBooks   Operation = "book.list"
	OpSearchBooks Operation = "book.search"
	OpAddBooks    Operation = "book.add"
	OpUpdateBook  Operation = "book.update"
	OpDeleteBook  Operation = "book.delete"
	OpIssueBooks  Operation = "inventory.issue"
	OpReturnBooks Operation = "inventory.return"
	OpListLoans   Operation = "inventory.loans"
	OpAddUsers    Operation = "user.add"
	OpListUsers   Operation = "user.list"
	OpUpdateUser  Operation = "user.update"
	OpDeleteUser  Operation = "user.delete"
)

// Public marks an operation that needs no credential.
const Public = ""

// Policy maps every operation to the role it requires.
type Policy map[Operation]string

// DefaultPolicy gates every mutation, including issue and return, behind admin.
func DefaultPolicy() Policy {
	return Policy{
		OpLogin:       Public,
		OpListBooks:   Public,
		OpSearchBooks: Public,
		OpAddBooks:    db.RoleAdmin,
		OpUpdateBook:  db.RoleAdmin,
		OpDeleteBook:  db.RoleAdmin,
		OpIssueBooks:  db.RoleAdmin,
		OpReturnBooks: db.RoleAdmin,
		OpListLoans:   db.RoleAdmin,
		OpAddUsers:    db.RoleAdmin,
		OpListUsers:   db.RoleAdmin,
		OpUpdateUser:  db.RoleAdmin,
		OpDeleteUser:  db.RoleAdmin,
	}
}

// RequiredRole returns the role op requires. Operations missing from the
// table are treated as admin-only, so a forgotten entry fails closed.
func (p Policy) RequiredRole(op Operation) string {
	role, ok := p[op]
	if !ok {
		return db.RoleAdmin
	}
	return role
}
