package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tos/apps/api/echo"
	"github.com/trezcool/tos/core"
	"github.com/trezcool/tos/core/rbac"
	"github.com/trezcool/tos/core/tenant"
	"github.com/trezcool/tos/core/user"
	"github.com/trezcool/tos/services/ratelimit"
	"github.com/trezcool/tos/tests"
)

// loginAttempts is the number of login attempts allowed per client per minute.
const loginAttempts = 5

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// fixture is a running API with an agency "Acme" and its tenant "Globex".
type fixture struct {
	env    *testutil.Env
	app    echoapi.Server
	auth   *echoapi.Authenticator
	agency tenant.Agency
	tnt    tenant.Tenant

	root        user.User // platform admin
	admin       user.User // agency admin
	fiona       user.User // facilitator
	carl        user.User // coach
	ada, bob    user.User // learners
	healthError error
}

func setup(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewTestEnv(t)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	f := &fixture{env: env}
	f.app = echoapi.NewServer(&echoapi.Options{
		Conf:            env.Conf,
		Logger:          env.Logger,
		Clock:           env.Clock,
		Validate:        validate,
		Translator:      translator,
		RateLimiter:     ratelimit.NewMemoryLimiter(env.Clock, loginAttempts, time.Minute),
		HealthCheck:     func(_ context.Context) error { return f.healthError },
		DisableReqLogs:  true,
		TenantSvc:       env.TenantSvc,
		UserSvc:         env.UserSvc,
		ProgramSvc:      env.ProgramSvc,
		EnrollmentSvc:   env.EnrollmentSvc,
		AssessmentSvc:   env.AssessmentSvc,
		CoachingSvc:     env.CoachingSvc,
		NotificationSvc: env.NotificationSvc,
		UploadSvc:       env.UploadSvc,
	})
	f.auth = echoapi.NewAuthenticator(env.Conf, env.Clock)

	f.agency = env.CreateAgency(t, "Acme")
	f.tnt = env.CreateTenant(t, f.agency.ID, "Globex")
	f.root = env.CreateUser(t, "", "", "root", rbac.RolePlatformAdmin)
	f.admin = env.CreateUser(t, f.agency.ID, "", "alice", rbac.RoleAgencyAdmin)
	f.fiona = env.CreateUser(t, f.agency.ID, f.tnt.ID, "fiona", rbac.RoleFacilitator)
	f.carl = env.CreateUser(t, f.agency.ID, f.tnt.ID, "carl", rbac.RoleCoach)
	f.ada = env.CreateUser(t, f.agency.ID, f.tnt.ID, "ada", rbac.RoleLearner)
	f.bob = env.CreateUser(t, f.agency.ID, f.tnt.ID, "bob", rbac.RoleLearner)
	return f
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.auth.GenerateToken(f.auth.UserClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

// do serves a JSON request; body is marshalled unless it already is a []byte.
func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		data = b
	default:
		data = marshallObj(t, b)
	}
	req, rec := newAuthRequest(method, path, token, data)
	f.app.ServeHTTP(rec, req)
	return rec
}

// run serves tt and checks its code and data.
func (f *fixture) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

// checkCodeAndData checks the response code and, when tt.wantData is set, the JSON body.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
