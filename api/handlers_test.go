package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/usergrid/pkg/datatable"
	"github.com/memtensor/usergrid/pkg/users"
)

type gridPage struct {
	TotalRecords    int64                    `json:"totalRecords"`
	FilteredRecords int64                    `json:"filteredRecords"`
	Items           []map[string]interface{} `json:"items"`
	Others          map[string]interface{}   `json:"others"`
}

func seedUsers(t *testing.T, env *testEnv, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := env.manager.CreateUser(t.Context(), users.CreateUserParams{
			Username: fmt.Sprintf("user%02d", i),
			Password: "password123",
			FullName: fmt.Sprintf("Grid User %02d", i),
			Phone:    users.StringPtr(fmt.Sprintf("555-01%02d", i)),
		})
		require.NoError(t, err)
	}
}

func TestListUsers(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	seedUsers(t, env, 30)
	router := env.server.router

	t.Run("first page", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?sort=id", nil, env.userToken)
		require.Equal(t, http.StatusOK, w.Code)

		body := decodeEnvelope(t, w)
		assert.True(t, body.Success)
		assert.Equal(t, "", body.Message)
		assert.JSONEq(t, `null`, string(body.Errors))

		var page gridPage
		require.NoError(t, json.Unmarshal(body.Data, &page))
		assert.EqualValues(t, 31, page.TotalRecords)
		assert.EqualValues(t, 31, page.FilteredRecords)
		assert.Len(t, page.Items, datatable.DefaultLimit)
		assert.Equal(t, map[string]interface{}{}, page.Others)

		first := page.Items[0]
		assert.Equal(t, "alice", first["username"])
		assert.Equal(t, "alice@example.com", first["contact"])
		assert.EqualValues(t, 1, first[datatable.DefaultRowIndexName])
		assert.NotContains(t, first, "password")
	})

	t.Run("search and paginate", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?k=GRID+USER+1&p=2&ipp=5&sort=id", nil, env.userToken)
		require.Equal(t, http.StatusOK, w.Code)

		var page gridPage
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
		assert.EqualValues(t, 31, page.TotalRecords)
		assert.EqualValues(t, 30, page.FilteredRecords)
		require.Len(t, page.Items, 5)
		assert.EqualValues(t, 6, page.Items[0][datatable.DefaultRowIndexName])
	})

	t.Run("phone search", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?k=555-0107", nil, env.userToken)
		require.Equal(t, http.StatusOK, w.Code)

		var page gridPage
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
		assert.EqualValues(t, 1, page.FilteredRecords)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "user07", page.Items[0]["username"])
		assert.Equal(t, "555-0107", page.Items[0]["contact"])
	})

	t.Run("admins are hidden", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?k=admin", nil, env.adminToken)
		require.Equal(t, http.StatusOK, w.Code)

		var page gridPage
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &page))
		assert.EqualValues(t, 0, page.FilteredRecords)
		assert.Empty(t, page.Items)
	})

	t.Run("limit above ceiling", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?ipp=1000", nil, env.userToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, datatable.MsgLimitExceeded, decodeEnvelope(t, w).Message)
	})

	t.Run("explicit zero page", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?p=0", nil, env.userToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, datatable.MsgInvalidPage, decodeEnvelope(t, w).Message)
	})

	t.Run("explicit zero limit", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?ipp=0", nil, env.userToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, datatable.MsgInvalidLimit, decodeEnvelope(t, w).Message)
	})

	t.Run("unknown sort column", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?sort=password", nil, env.userToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, datatable.MsgInvalidSort, decodeEnvelope(t, w).Message)
	})

	t.Run("non numeric page", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users?p=two", nil, env.userToken)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestExportUsers(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	seedUsers(t, env, 3)

	w := performRequest(env.server.router, "GET", "/api/v1/users?action=export&sort=id&dir=desc&ipp=1", nil, env.userToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="users.csv"`, w.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, []string{"ID", "Username", "Full name", "Phone", "Email"}, records[0])
	assert.Equal(t, "user02", records[1][1])
	assert.Equal(t, "alice", records[4][1])
	assert.Equal(t, "alice@example.com", records[4][4])
}

func TestUserColumns(t *testing.T) {
	env := setupTestEnv(t, testConfig())

	w := performRequest(env.server.router, "GET", "/api/v1/users/columns", nil, env.userToken)
	require.Equal(t, http.StatusOK, w.Code)

	var columns struct {
		Table    string                   `json:"table"`
		Columns  []map[string]interface{} `json:"columns"`
		RowIndex string                   `json:"rowIndex"`
		Limits   LimitsInfo               `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &columns))
	assert.Equal(t, "users", columns.Table)
	assert.Equal(t, datatable.DefaultRowIndexName, columns.RowIndex)
	assert.Equal(t, LimitsInfo{Default: 25, Max: 100}, columns.Limits)
	require.Len(t, columns.Columns, 6)
	assert.Equal(t, "id", columns.Columns[0]["key"])
	assert.Equal(t, "contact", columns.Columns[5]["key"])
}

func TestUserCRUD(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	router := env.server.router

	w := performRequest(router, "POST", "/api/v1/users", map[string]interface{}{
		"username":  "bob",
		"password":  "password123",
		"full_name": "Bob Builder",
		"email":     "Bob@Example.com",
	}, env.adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeEnvelope(t, w)
	assert.True(t, body.Success)
	assert.Equal(t, users.MsgUserCreated, body.Message)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Data, &created))
	assert.Equal(t, "bob@example.com", created["email"])
	assert.NotContains(t, created, "password")
	id := int(created["id"].(float64))
	path := fmt.Sprintf("/api/v1/users/%d", id)

	t.Run("duplicate", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/v1/users", map[string]interface{}{
			"username": "bob",
			"password": "password123",
		}, env.adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeEnvelope(t, w)
		assert.False(t, body.Success)
		assert.Equal(t, MsgDuplicate, body.Message)
	})

	t.Run("invalid payload", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/v1/users", map[string]interface{}{
			"username": "x",
			"password": "password123",
			"email":    "nope",
		}, env.adminToken)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var details []ErrorDetail
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Errors, &details))
		assert.Len(t, details, 2)
	})

	t.Run("weak password", func(t *testing.T) {
		w := performRequest(router, "POST", "/api/v1/users", map[string]interface{}{
			"username": "carol",
			"password": "short",
		}, env.adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeEnvelope(t, w).Message, "at least 8 characters")
	})

	t.Run("get", func(t *testing.T) {
		w := performRequest(router, "GET", path, nil, env.userToken)
		require.Equal(t, http.StatusOK, w.Code)

		var got map[string]interface{}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &got))
		assert.Equal(t, "bob", got["username"])
	})

	t.Run("update", func(t *testing.T) {
		w := performRequest(router, "PUT", path, map[string]interface{}{
			"full_name": "Robert Builder",
			"password":  "newpassword456",
		}, env.adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, users.MsgUserUpdated, decodeEnvelope(t, w).Message)

		env.login(t, "bob", "newpassword456")
	})

	t.Run("update to taken email", func(t *testing.T) {
		w := performRequest(router, "PUT", path, map[string]interface{}{"email": "alice@example.com"}, env.adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgDuplicate, decodeEnvelope(t, w).Message)
	})

	t.Run("delete", func(t *testing.T) {
		w := performRequest(router, "DELETE", path, nil, env.adminToken)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, users.MsgUserDeleted, decodeEnvelope(t, w).Message)

		w = performRequest(router, "GET", path, nil, env.adminToken)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, users.MsgUserNotFound, decodeEnvelope(t, w).Message)

		w = performRequest(router, "DELETE", path, nil, env.adminToken)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := performRequest(router, "GET", "/api/v1/users/abc", nil, env.adminToken)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgInvalidID, decodeEnvelope(t, w).Message)
	})
}

func TestMe(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	router := env.server.router

	w := performRequest(router, "GET", "/api/v1/users/me", nil, env.userToken)
	require.Equal(t, http.StatusOK, w.Code)

	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &me))
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, false, me["is_admin"])

	w = performRequest(router, "PUT", "/api/v1/users/me", map[string]interface{}{
		"full_name": "Alice Pleasance Liddell",
		"email":     "Alice.L@Example.com",
	}, env.userToken)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &me))
	assert.Equal(t, "Alice Pleasance Liddell", me["full_name"])
	assert.Equal(t, "alice.l@example.com", me["email"])

	t.Run("cannot promote itself", func(t *testing.T) {
		w := performRequest(router, "PUT", "/api/v1/users/me", map[string]interface{}{"is_admin": true}, env.userToken)
		require.Equal(t, http.StatusOK, w.Code)

		stored, err := env.manager.GetUser(t.Context(), env.user.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsAdmin)
	})
}
