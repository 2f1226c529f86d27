package auth

import (
	"sync"

	"github.com/google/uuid"
	"github.com/tobsdb/memdb/pkg"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/src-d/go-errors.v1"
)

var (
	InvalidCredentials      = errors.NewKind("invalid credentials")
	InsufficientPermissions = errors.NewKind("insufficient permissions")
	UserExists              = errors.NewKind("user %s already exists")
	PasswordTooLong         = errors.NewKind("password is longer than 72 bytes")
)

type UserRole int

const (
	UserRoleAdmin UserRole = iota
	UserRoleReadWrite
	UserRoleReadOnly
)

type User struct {
	Id       string
	Name     string
	Password []byte
	Role     UserRole
}

func NewUser(name, password string, role UserRole) (*User, error) {
	// bcrypt only reads the first 72 bytes
	if len(password) > 72 {
		return nil, PasswordTooLong.New()
	}
	hashed_password, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &User{uuid.New().String(), name, hashed_password, role}, nil
}

func (u *User) ValidateUser(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Password, []byte(password)) == nil
}

func (u *User) HasClearance(r UserRole) bool { return u != nil && u.Role <= r }

// Users is the set of accounts allowed to open connections.
type Users struct {
	locker sync.RWMutex
	data   pkg.Map[string, *User]
}

func NewUsers() *Users {
	return &Users{data: pkg.Map[string, *User]{}}
}

func (us *Users) GetLocker() *sync.RWMutex { return &us.locker }

func (us *Users) Add(name, password string, role UserRole) (*User, error) {
	user, err := NewUser(name, password, role)
	if err != nil {
		return nil, err
	}
	pkg.LockWrap(us, func() {
		if us.data.Has(name) {
			err = UserExists.New(name)
			return
		}
		us.data.Set(name, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (us *Users) Len() int {
	return pkg.RLockValue(us, func() int { return len(us.data) })
}

func (us *Users) Authenticate(name, password string) (*User, error) {
	user := pkg.RLockValue(us, func() *User { return us.data.Get(name) })
	if user == nil || !user.ValidateUser(password) {
		return nil, InvalidCredentials.New()
	}
	return user, nil
}
