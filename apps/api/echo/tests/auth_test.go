package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tos/apps/api/echo"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/services/email"
	"github.com/trezcool/tos/tests"
)

const newPassword = "N3w-Str0ng!secret"

func TestUserApi_Login(t *testing.T) {
	f := setup(t)

	tests := []httpTest{
		{
			name:     "required fields",
			body:     marshallObj(t, echoapi.LoginRequest{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"username": "this field is required",
				"password": "this field is required",
			}),
		},
		{
			name:     "wrong password",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "ada", Password: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown user",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "nobody", Password: testutil.Password}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "username",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "  ADA ", Password: testutil.Password}),
			wantCode: http.StatusOK,
		},
		{
			name:     "email",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "bob@example.com", Password: testutil.Password}),
			wantCode: http.StatusOK,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.method = http.MethodPost
			tc.path = "/api/users/login"
			rec := f.run(t, tc)

			if tc.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)

				me := f.do(t, http.MethodGet, "/api/users/me", resp.Token, nil)
				require.Equal(t, http.StatusOK, me.Code, me.Body.String())
				var usr user.User
				decode(t, me, &usr)
				assert.True(t, f.env.Clock.Now().Equal(usr.LastLogin))
			}
		})
	}
}

func TestUserApi_LoginDeactivated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	login := marshallObj(t, echoapi.LoginRequest{Username: "ada", Password: testutil.Password})

	// the tenant is deactivated
	f.tnt.IsActive = false
	_, err := f.env.TenantRepo.UpdateTenant(ctx, f.tnt)
	require.NoError(t, err)

	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     "/api/users/login",
		body:     login,
		wantCode: http.StatusForbidden,
		wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
	})

	// tokens issued before are rejected as well
	f.run(t, httpTest{
		method:   http.MethodGet,
		path:     "/api/users/me",
		token:    f.token(t, f.ada),
		wantCode: http.StatusForbidden,
		wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
	})

	// users of other tenants are not affected
	f.run(t, httpTest{
		method:   http.MethodGet,
		path:     "/api/users/me",
		token:    f.token(t, f.admin),
		wantCode: http.StatusOK,
	})

	// the user is deactivated
	f.tnt.IsActive = true
	_, err = f.env.TenantRepo.UpdateTenant(ctx, f.tnt)
	require.NoError(t, err)
	f.ada.IsActive = false
	_, err = f.env.UserRepo.UpdateUser(ctx, f.ada)
	require.NoError(t, err)

	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     "/api/users/login",
		body:     login,
		wantCode: http.StatusForbidden,
		wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
	})
}

func TestUserApi_LoginRateLimit(t *testing.T) {
	f := setup(t)
	body := marshallObj(t, echoapi.LoginRequest{Username: "ada", Password: "nope"})

	for i := 0; i < loginAttempts; i++ {
		rec := f.do(t, http.MethodPost, "/api/users/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "attempt %d", i+1)
	}
	rec := f.do(t, http.MethodPost, "/api/users/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other routes keep their own budget
	rec = f.do(t, http.MethodPost, "/api/users/password-reset", "", echoapi.PasswordResetRequest{Email: "ada@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// attempts come back with time
	f.env.Clock.Advance(time.Minute)
	rec = f.do(t, http.MethodPost, "/api/users/login", "", echoapi.LoginRequest{Username: "ada", Password: testutil.Password})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.ada)

	tests := []httpTest{
		{
			name:     "missing token",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			token:    "garbage",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "invalid or expired jwt"}),
		},
		{
			name:     "valid token",
			token:    token,
			wantCode: http.StatusOK,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.method = http.MethodGet
			tc.path = "/api/users/me"
			f.run(t, tc)
		})
	}

	t.Run("deleted user", func(t *testing.T) {
		require.NoError(t, f.env.UserRepo.DeleteUsers(context.Background(), []string{f.bob.ID}))
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     "/api/users/me",
			token:    f.token(t, f.bob),
			wantCode: http.StatusUnauthorized,
		})
	})

	t.Run("expired token", func(t *testing.T) {
		f.env.Clock.Advance(8 * 24 * time.Hour)
		f.run(t, httpTest{
			method:   http.MethodGet,
			path:     "/api/users/me",
			token:    token,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, httpErr{Error: "invalid or expired jwt"}),
		})
	})
}

func TestUserApi_Me(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/api/users/me", f.token(t, f.fiona), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, f.fiona.ID, usr.ID)
	assert.Equal(t, f.tnt.ID, usr.TenantID)
	assert.Equal(t, f.fiona.Roles, usr.Roles)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestUserApi_RefreshToken(t *testing.T) {
	f := setup(t)
	token := f.token(t, f.ada)

	f.env.Clock.Advance(time.Hour)
	rec := f.do(t, http.MethodPost, "/api/users/token-refresh", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	assert.NotEqual(t, token, resp.Token)

	// the refresh window counts from the first token of the chain
	f.env.Clock.Advance(4 * time.Hour)
	f.run(t, httpTest{
		method:   http.MethodPost,
		path:     "/api/users/token-refresh",
		token:    resp.Token,
		wantCode: http.StatusForbidden,
		wantData: marshallObj(t, httpErr{Error: "refresh has expired"}),
	})

	// the token itself stays usable until it expires
	f.run(t, httpTest{
		method:   http.MethodGet,
		path:     "/api/users/me",
		token:    resp.Token,
		wantCode: http.StatusOK,
	})
}

func TestUserApi_PasswordReset(t *testing.T) {
	f := setup(t)

	t.Run("unknown email", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/users/password-reset", "", echoapi.PasswordResetRequest{Email: "nobody@example.com"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, emailsvc.LastSentMessages(1))
	})

	t.Run("invalid email", func(t *testing.T) {
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/password-reset",
			body:     marshallObj(t, echoapi.PasswordResetRequest{Email: "ada"}),
			wantCode: http.StatusBadRequest,
		})
	})

	t.Run("reset", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/users/password-reset", "", echoapi.PasswordResetRequest{Email: "ADA@example.com"})
		require.Equal(t, http.StatusOK, rec.Code)

		sent := emailsvc.LastSentMessages(1)
		require.Len(t, sent, 1)
		assert.Equal(t, "ada@example.com", sent[0].To[0].Address)
		data, ok := sent[0].TemplateData.(map[string]string)
		require.True(t, ok)

		confirm := user.ResetUserPassword{
			UID:             data["UID"],
			Token:           data["Token"],
			Password:        newPassword,
			PasswordConfirm: newPassword,
		}

		bad := confirm
		bad.Token = "garbage"
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/password-reset-confirm",
			body:     marshallObj(t, bad),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid token"}),
		})

		weak := confirm
		weak.Password, weak.PasswordConfirm = "12345678", "12345678"
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/password-reset-confirm",
			body:     marshallObj(t, weak),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		})

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/password-reset-confirm",
			body:     marshallObj(t, confirm),
			wantCode: http.StatusOK,
		})

		// tokens are single use
		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/password-reset-confirm",
			body:     marshallObj(t, confirm),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "invalid token"}),
		})

		f.run(t, httpTest{
			method:   http.MethodPost,
			path:     "/api/users/login",
			body:     marshallObj(t, echoapi.LoginRequest{Username: "ada", Password: newPassword}),
			wantCode: http.StatusOK,
		})
	})

	t.Run("inactive user", func(t *testing.T) {
		emailsvc.ClearSentMessages()
		f.bob.IsActive = false
		_, err := f.env.UserRepo.UpdateUser(context.Background(), f.bob)
		require.NoError(t, err)

		rec := f.do(t, http.MethodPost, "/api/users/password-reset", "", echoapi.PasswordResetRequest{Email: "bob@example.com"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, emailsvc.LastSentMessages(1))
	})
}
