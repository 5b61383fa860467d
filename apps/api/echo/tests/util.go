package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/linguadesk/staffdesk/apps/api/echo"
	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
	emailsvc "github.com/linguadesk/staffdesk/services/email"
	logsvc "github.com/linguadesk/staffdesk/services/logger"
	dummydb "github.com/linguadesk/staffdesk/storage/database/dummy"
	testutil "github.com/linguadesk/staffdesk/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}

	operator = core.Operator{ID: "op-1", Username: "frontdesk", Email: "frontdesk@school.test"}
	admin    = core.Operator{ID: "admin-1", Username: "admin", Email: "admin@school.test"}
)

type testApp struct {
	*Server
	conf    *core.Config
	store   testutil.Store
	records *dummydb.FaultyRepository
	mailSvc *emailsvc.ConsoleServiceMock
}

// setup builds a server over an in-memory store holding instructors a, b, c (school s1) and d (school s2).
// Creates for the failInstructorIDs fail.
func setup(t *testing.T, failInstructorIDs ...string) *testApp {
	conf := core.NewTestConfig()
	conf.Notify.LateArrivalRecipients = []string{"office@school.test"}
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "API : ", 0), conf)

	store := testutil.NewDummyStore(t)
	testutil.CreateInstructor(t, store.Instructors, "a", "Ana", "s1")
	testutil.CreateInstructor(t, store.Instructors, "b", "Ben", "s1")
	testutil.CreateInstructor(t, store.Instructors, "c", "Cy", "s1")
	testutil.CreateInstructor(t, store.Instructors, "d", "Dee", "s2")
	records := dummydb.NewFaultyRepository(store.Records, failInstructorIDs...)

	core.ParseEmailTemplates(logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	svc, err := attendance.NewService(records, store.Instructors, mailSvc, conf, logger)
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}

	validate, translator := core.NewValidator()
	attendance.InitValidators(validate, translator)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		AttendanceSvc:  svc,
		Roster:         store.Instructors,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testApp{Server: server, conf: conf, store: store, records: records, mailSvc: mailSvc}
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.ServeHTTP(rec, req)
	return rec
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
	extra    interface{}
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

func getToken(t *testing.T, conf *core.Config, op core.Operator, isAdmin ...bool) string {
	claims := NewOperatorClaims(op, len(isAdmin) > 0 && isAdmin[0], conf)
	token, err := GenerateToken(claims, conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
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
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
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
