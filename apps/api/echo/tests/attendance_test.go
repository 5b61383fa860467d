package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/linguadesk/staffdesk/apps/api/echo"
	"github.com/linguadesk/staffdesk/core"
	"github.com/linguadesk/staffdesk/core/attendance"
	testutil "github.com/linguadesk/staffdesk/tests"
)

func TestAuth(t *testing.T) {
	app := setup(t)
	anonymous := getToken(t, app.conf, core.Operator{})
	expired := NewOperatorClaims(operator, false, app.conf)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(expired, app.conf.SecretKey)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "no token", method: http.MethodGet, path: "/v1/attendance", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "no operator", method: http.MethodGet, path: "/v1/attendance", token: anonymous, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"})},
		{name: "expired", method: http.MethodGet, path: "/v1/instructors", token: expiredToken, wantCode: http.StatusUnauthorized},
		{name: "wrong key", method: http.MethodGet, path: "/v1/instructors", token: expiredToken + "x", wantCode: http.StatusUnauthorized},
		{name: "ok", method: http.MethodGet, path: "/v1/instructors", token: getToken(t, app.conf, operator), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}

func TestTokenRefresh(t *testing.T) {
	app := setup(t)

	req, rec := newAuthRequest(http.MethodPost, "/v1/token-refresh", getToken(t, app.conf, operator))
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TokenResponse
	unmarchall(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	// refresh window is over
	old := NewOperatorClaims(operator, false, app.conf, time.Now().Add(-2*app.conf.Server.JWTRefreshExpirationDelta).Unix())
	oldToken, err := GenerateToken(old, app.conf.SecretKey)
	require.NoError(t, err)
	req, rec = newAuthRequest(http.MethodPost, "/v1/token-refresh", oldToken)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})}, app.do(req, rec))

	parsed, err := jwt.ParseWithClaims(resp.Token, new(Claims), func(*jwt.Token) (interface{}, error) {
		return []byte(app.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "op-1", parsed.Claims.(*Claims).Subject)
}

func TestListInstructors(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)

	req, rec := newAuthRequest(http.MethodGet, "/v1/instructors?school_id=s1", token)
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code)
	var instructors []attendance.Instructor
	unmarchall(t, rec, &instructors)
	assert.Len(t, instructors, 3)

	req, rec = newAuthRequest(http.MethodGet, "/v1/instructors", token)
	app.do(req, rec)
	unmarchall(t, rec, &instructors)
	assert.Len(t, instructors, 4)
}

func TestCreateRecord(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/v1/attendance", token: token,
			body:     marchallObj(t, map[string]string{}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"instructor_id": "this field is required",
				"date":          "this field is required",
				"status":        "this field is required",
			}),
		},
		{
			name: "invalid values", method: http.MethodPost, path: "/v1/attendance", token: token,
			body: marchallObj(t, map[string]string{
				"instructor_id": "a", "date": "10/03/2025", "status": "vacation", "time_in": "7h",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"date":    "this field must be a date in the YYYY-MM-DD format",
				"status":  "this field must be one of present, late, absent, sick, paternity, pto or bereavement",
				"time_in": "this field must be a time in the HH:MM format",
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}

	t.Run("late check-in is reclassified", func(t *testing.T) {
		body := marchallObj(t, map[string]string{
			"instructor_id": "a", "date": "2025-03-10T06:30:00Z", "status": "Present", "time_in": "07:05",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, body)
		app.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got attendance.Record
		unmarchall(t, rec, &got)
		assert.Equal(t, attendance.StatusLate, got.Status)
		assert.Equal(t, "2025-03-10", got.Date)
		assert.Equal(t, "op-1", got.RecordedBy)
		assert.NotEmpty(t, got.ID)
	})

	t.Run("same day supersedes", func(t *testing.T) {
		body := marchallObj(t, map[string]string{"instructor_id": "a", "date": "2025-03-10", "status": "sick"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/attendance", token, body)
		app.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code)

		var got attendance.Record
		unmarchall(t, rec, &got)
		assert.Equal(t, attendance.StatusSick, got.Status)
		assert.Equal(t, 2, got.Version)
	})
}

func TestQueryRecords(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)
	testutil.CreateRecord(t, app.store.Records, "a", "2025-03-10", attendance.StatusPresent, "06:55")
	testutil.CreateRecord(t, app.store.Records, "b", "2025-03-11", attendance.StatusAbsent, "")
	testutil.CreateRecord(t, app.store.Records, "d", "2025-03-11", attendance.StatusPresent, "06:40")
	testutil.CreateRecord(t, app.store.Records, "a", "2025-04-01", attendance.StatusLate, "07:30")

	tests := []struct {
		path    string
		wantIDs []string // instructor ids, in order
	}{
		{path: "/v1/attendance", wantIDs: []string{"a", "b", "d", "a"}},
		{path: "/v1/attendance?date=2025-03", wantIDs: []string{"a", "b", "d"}},
		{path: "/v1/attendance?date=2025-03-11&school_id=s1", wantIDs: []string{"b"}},
		{path: "/v1/attendance?instructor_id=a&ordering=-date", wantIDs: []string{"a", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, token)
			app.do(req, rec)
			require.Equal(t, http.StatusOK, rec.Code)

			var got []attendance.Record
			unmarchall(t, rec, &got)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.InstructorID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	req, rec := newAuthRequest(http.MethodGet, "/v1/attendance?date=march", token)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"date": "this field must be a day (YYYY-MM-DD) or a month (YYYY-MM)"}),
	}, app.do(req, rec))
}

func TestUpdateDeleteRecord(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)
	adminToken := getToken(t, app.conf, admin, true)
	rec0 := testutil.CreateRecord(t, app.store.Records, "a", "2025-03-10", attendance.StatusAbsent, "")
	path := "/v1/attendance/" + rec0.ID

	req, rec := newAuthRequest(http.MethodPut, path, token, marchallObj(t, map[string]interface{}{
		"status": "present", "time_in": "07:20", "version": 1,
	}))
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got attendance.Record
	unmarchall(t, rec, &got)
	assert.Equal(t, attendance.StatusLate, got.Status)
	assert.Equal(t, 2, got.Version)

	tests := []httpTest{
		{
			name: "stale version", method: http.MethodPut, path: path, token: token,
			body:     marchallObj(t, map[string]interface{}{"comments": "x", "version": 1}),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: attendance.ErrVersionConflict.Error()}),
		},
		{
			name: "unknown record", method: http.MethodPut, path: "/v1/attendance/nope", token: token,
			body:     marchallObj(t, map[string]interface{}{"comments": "x"}),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: attendance.ErrNotFound.Error()}),
		},
		{name: "retrieve", method: http.MethodGet, path: path, token: token, wantCode: http.StatusOK},
		{name: "delete: not admin", method: http.MethodDelete, path: path, token: token, wantCode: http.StatusForbidden},
		{name: "delete", method: http.MethodDelete, path: path, token: adminToken, wantCode: http.StatusNoContent},
		{name: "delete: gone", method: http.MethodDelete, path: path, token: adminToken, wantCode: http.StatusNotFound},
		{name: "retrieve: gone", method: http.MethodGet, path: path, token: token, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
}

func TestStats(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)
	for day := 1; day <= 8; day++ {
		testutil.CreateRecord(t, app.store.Records, "a", time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC).Format(time.RFC3339), attendance.StatusPresent, "06:50")
	}
	testutil.CreateRecord(t, app.store.Records, "a", "2025-03-20", attendance.StatusLate, "07:30")
	testutil.CreateRecord(t, app.store.Records, "a", "2025-03-21", attendance.StatusLate, "07:40")
	testutil.CreateRecord(t, app.store.Records, "b", "2025-03-02", attendance.StatusAbsent, "")
	testutil.CreateRecord(t, app.store.Records, "b", "2025-04-02", attendance.StatusPresent, "06:50")

	req, rec := newAuthRequest(http.MethodGet, "/v1/attendance/stats?period=2025-03&school_id=s1", token)
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep struct {
		Scope struct {
			Period   string `json:"period"`
			Kind     string `json:"kind"`
			SchoolID string `json:"school_id"`
		} `json:"scope"`
		Stats        []attendance.InstructorStat `json:"stats"`
		DistinctDays int                         `json:"distinct_days"`
	}
	unmarchall(t, rec, &rep)
	assert.Equal(t, "2025-03", rep.Scope.Period)
	assert.Equal(t, "month", rep.Scope.Kind)
	require.Len(t, rep.Stats, 3)
	assert.Equal(t, 90, rep.Stats[0].AttendanceRate)
	assert.Equal(t, 10, rep.Stats[0].RecordedDays)
	assert.Equal(t, 0, rep.Stats[1].AttendanceRate)
	assert.Equal(t, 1, rep.Stats[1].AbsentDays)
	assert.Equal(t, 0, rep.Stats[2].RecordedDays)
	assert.Equal(t, 10, rep.DistinctDays)

	req, rec = newAuthRequest(http.MethodGet, "/v1/attendance/stats?period=03-2025", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest}, app.do(req, rec))
}

func TestBulk_Scenario(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)

	body := marchallObj(t, BulkRequest{
		Date:     "2025-03-10",
		SchoolID: "s1",
		Entries: []BulkEntry{
			{InstructorID: "a", TimeIn: "07:05"},
			{InstructorID: "b", Status: attendance.StatusAbsent},
		},
	})
	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance/bulk", token, body)
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res attendance.BulkResult
	unmarchall(t, rec, &res)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.LateArrivals, 1)
	assert.Equal(t, "a", res.LateArrivals[0].InstructorID)

	creates := app.records.Creates()
	require.Len(t, creates, 2)
	statuses := map[string]attendance.Status{}
	for _, c := range creates {
		statuses[c.InstructorID] = c.Status
		assert.Equal(t, "op-1", c.RecordedBy)
	}
	assert.Equal(t, map[string]attendance.Status{"a": attendance.StatusLate, "b": attendance.StatusAbsent}, statuses)

	sent := app.mailSvc.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Ana checked in at 07:05")
}

func TestBulk_Validation(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, operator)

	tests := []httpTest{
		{
			name: "nothing selected", method: http.MethodPost, path: "/v1/attendance/bulk", token: token,
			body:     marchallObj(t, BulkRequest{Date: "2025-03-10", SchoolID: "s1"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"instructors": attendance.ErrNothingSelected.Error()}),
		},
		{
			name: "missing date", method: http.MethodPost, path: "/v1/attendance/bulk", token: token,
			body:     marchallObj(t, BulkRequest{SchoolID: "s1", SelectAll: true}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"date": "this field is required"}),
		},
		{
			name: "time in on absent", method: http.MethodPost, path: "/v1/attendance/bulk", token: token,
			body: marchallObj(t, BulkRequest{Date: "2025-03-10", SchoolID: "s1", Entries: []BulkEntry{
				{InstructorID: "a", Status: attendance.StatusAbsent, TimeIn: "07:10"},
			}}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "instructor of another school", method: http.MethodPost, path: "/v1/attendance/bulk", token: token,
			body: marchallObj(t, BulkRequest{Date: "2025-03-10", SchoolID: "s1", Entries: []BulkEntry{
				{InstructorID: "d", Status: attendance.StatusPresent},
			}}),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, app.do(req, rec))
		})
	}
	assert.Empty(t, app.records.Creates(), "validation failures never reach the store")
}

func TestBulk_PartialFailure(t *testing.T) {
	app := setup(t, "b")
	token := getToken(t, app.conf, operator)

	body := marchallObj(t, BulkRequest{Date: "2025-03-10", SchoolID: "s1", SelectAll: true})
	req, rec := newAuthRequest(http.MethodPost, "/v1/attendance/bulk", token, body)
	app.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res attendance.BulkResult
	unmarchall(t, rec, &res)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.LateArrivals)
	require.Len(t, res.Items, 3)
	assert.NotEmpty(t, res.Items[1].Error)

	assert.Len(t, app.records.Creates(), 3)
	stored, err := app.store.Records.QueryRecords(req.Context(), attendance.QueryFilter{Date: "2025-03-10"})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Empty(t, app.mailSvc.Sent())
}
