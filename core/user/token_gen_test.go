package user

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trezcool/tos/core"
)

func TestMakeVerifyToken(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SecretKey = "secret"
	conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour

	now := time.Date(2024, time.May, 4, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	gen := newTokenGenerator(conf, clock)

	usr := User{
		ID:        "7b3c1a0e-8e4c-4a57-9a36-3a1b8f0c2d11",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken, _ := gen.makeToken(usr)

	// generate an expired token
	dayLate := conf.PasswordResetTimeoutDelta + (24 * time.Hour)
	expiredGen := newTokenGenerator(conf, clockwork.NewFakeClockAt(now.Add(-dayLate)))
	expiredToken, _ := expiredGen.makeToken(usr)

	// a login invalidates previously issued tokens
	loggedIn := usr
	loggedIn.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "user logged in since", usr: loggedIn, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "7b3c1a0e-8e4c-4a57-9a36-3a1b8f0c2d11"}
	id, err := DecodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("DecodeUID() error = %v", err)
	}
	if id != usr.ID {
		t.Errorf("DecodeUID() = %v, want %v", id, usr.ID)
	}
	if _, err = DecodeUID("!!"); err == nil {
		t.Error("DecodeUID() expected an error")
	}
}
