package auth_test

import (
	"strings"
	"testing"

	. "github.com/tobsdb/memdb/internal/auth"
	"gotest.tools/assert"
)

func TestUsers(t *testing.T) {
	users := NewUsers()
	admin, err := users.Add("admin", "secret", UserRoleAdmin)
	assert.NilError(t, err)
	_, err = users.Add("reader", "hunter2", UserRoleReadOnly)
	assert.NilError(t, err)
	assert.Equal(t, users.Len(), 2)

	t.Run("authenticate", func(t *testing.T) {
		user, err := users.Authenticate("admin", "secret")
		assert.NilError(t, err)
		assert.Assert(t, user == admin)

		_, err = users.Authenticate("admin", "wrong")
		assert.Assert(t, InvalidCredentials.Is(err))
		_, err = users.Authenticate("nobody", "secret")
		assert.Assert(t, InvalidCredentials.Is(err))
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := users.Add("admin", "x", UserRoleReadWrite)
		assert.Assert(t, UserExists.Is(err))
	})

	t.Run("password too long", func(t *testing.T) {
		_, err := NewUser("long", strings.Repeat("a", 73), UserRoleReadOnly)
		assert.Assert(t, PasswordTooLong.Is(err))
	})

	t.Run("clearance", func(t *testing.T) {
		reader, _ := users.Authenticate("reader", "hunter2")
		assert.Assert(t, reader.HasClearance(UserRoleReadOnly))
		assert.Assert(t, !reader.HasClearance(UserRoleReadWrite))
		assert.Assert(t, admin.HasClearance(UserRoleReadWrite))

		var nobody *User
		assert.Assert(t, !nobody.HasClearance(UserRoleReadOnly))
	})
}
