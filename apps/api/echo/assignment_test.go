package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kazi/apps/api/echo"
	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/assignment"
	logsvc "github.com/trezcool/kazi/services/logger"
	"github.com/trezcool/kazi/storage"
	"github.com/trezcool/kazi/storage/cache"
	dummydb "github.com/trezcool/kazi/storage/database/dummy"
	"github.com/trezcool/kazi/storage/localfs"

	emailsvc "github.com/trezcool/kazi/services/email"
)

var ctx = context.Background()

func setup(t *testing.T) (echoapi.Server, *assignment.Service, *core.Config) {
	t.Helper()

	conf := core.NewTestConfig(".")
	conf.Storage.BaseDir = t.TempDir()

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewAssignmentRepository(db)

	cacheMan := cache.NewManager(cache.Options{TTL: conf.Storage.CacheTTL, MaxEntries: conf.Storage.CacheMaxEntries})
	adapterFor := func(a assignment.Assignment) (storage.Adapter, error) {
		base := filepath.Join(assignment.TenantRoot(conf, a.TenantID), filepath.FromSlash(a.BasePath))
		return localfs.NewAdapter(base, cacheMan)
	}

	validate, translator := core.NewValidator()
	assignment.InitValidators(validate, translator)

	svc := assignment.NewService(conf, repo, emailsvc.NewConsoleServiceMock(conf), adapterFor)

	srv := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logsvc.NewStdLogger(log.New(os.Stderr, "TEST : ", log.LstdFlags)),
		DisableReqLogs: true,
		AssignmentSvc:  svc,
		Validate:       validate,
		Translator:     translator,
	}, nil)
	return srv, svc, conf
}

func getToken(t *testing.T, conf *core.Config, viewer assignment.Viewer) string {
	t.Helper()
	token, err := echoapi.GenerateToken(conf, echoapi.GetViewerClaims(conf, viewer))
	require.NoError(t, err)
	return token
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

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func decodeFields(t *testing.T, body []byte) map[string]string {
	t.Helper()
	flds := make(map[string]string)
	require.NoError(t, json.Unmarshal(body, &flds))
	return flds
}

var (
	teacherViewer = assignment.Viewer{ID: "teach1", TenantID: "t1", Name: "Ms. Ada", Email: "ada@test.cd", IsTeacher: true}
	studentViewer = assignment.Viewer{ID: "stud1", TenantID: "t1", Name: "Obed", IsStudent: true}
	adminViewer   = assignment.Viewer{ID: "adm1", TenantID: "t1", IsAdmin: true}
	otherTenant   = assignment.Viewer{ID: "teach1", TenantID: "t2", IsTeacher: true}
)

func createAssignment(t *testing.T, svc *assignment.Service, viewer assignment.Viewer, name string) assignment.Assignment {
	t.Helper()
	a, err := svc.Create(ctx, viewer, assignment.NewAssignment{
		Course:      "algebra",
		Class:       "3a",
		Name:        name,
		StorageType: assignment.StorageFilesystem,
		BasePath:    filepath.Join("algebra", "3a", name),
	})
	require.NoError(t, err)
	return a
}

func TestAssignmentAPI_auth(t *testing.T) {
	srv, _, conf := setup(t)

	t.Run("missing token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments", "")
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("student cannot create", func(t *testing.T) {
		body := marshallObj(t, assignment.NewAssignment{
			Course: "algebra", Class: "3a", Name: "hw", StorageType: assignment.StorageFilesystem, BasePath: "hw",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", getToken(t, conf, studentViewer), body)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAssignmentAPI_create(t *testing.T) {
	srv, _, conf := setup(t)
	token := getToken(t, conf, teacherViewer)

	t.Run("created", func(t *testing.T) {
		body := marshallObj(t, assignment.NewAssignment{
			Course:      "algebra",
			Class:       "3a",
			Name:        "homework",
			StorageType: assignment.StorageFilesystem,
			BasePath:    "algebra/3a/homework",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", token, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var a assignment.Assignment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "t1", a.TenantID)
		assert.Equal(t, "teach1", a.TeacherID)
	})

	t.Run("input validation aggregates field errors", func(t *testing.T) {
		body := marshallObj(t, map[string]string{"storage_type": "dropbox"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", token, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		flds := decodeFields(t, rec.Body.Bytes())
		assert.Contains(t, flds, "course")
		assert.Contains(t, flds, "class")
		assert.Contains(t, flds, "name")
		assert.Contains(t, flds, "storage_type")
	})

	t.Run("per-storage-type required fields", func(t *testing.T) {
		body := marshallObj(t, map[string]string{
			"course": "cs", "class": "4a", "name": "compilers", "storage_type": "git",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", token, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		flds := decodeFields(t, rec.Body.Bytes())
		assert.Contains(t, flds, "git_url")
		assert.Contains(t, flds, "git_branch")
	})

	t.Run("inapplicable fields rejected", func(t *testing.T) {
		body := marshallObj(t, map[string]string{
			"course": "cs", "class": "4a", "name": "compilers", "storage_type": "filesystem",
			"base_path": "cs/4a/compilers", "git_url": "https://git.test.cd/x.git",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", token, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeFields(t, rec.Body.Bytes()), "git_url")
	})

	t.Run("duplicate name", func(t *testing.T) {
		body := marshallObj(t, assignment.NewAssignment{
			Course:      "algebra",
			Class:       "3a",
			Name:        "homework",
			StorageType: assignment.StorageFilesystem,
			BasePath:    "algebra/3a/homework",
		})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments", token, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeFields(t, rec.Body.Bytes()), "name")
	})
}

func TestAssignmentAPI_queryAndRetrieve(t *testing.T) {
	srv, svc, conf := setup(t)

	a1 := createAssignment(t, svc, teacherViewer, "hw-1")
	a2 := createAssignment(t, svc, teacherViewer, "hw-2")

	t.Run("list is tenant and owner scoped", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments", getToken(t, conf, teacherViewer))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got []assignment.Assignment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []string{a1.ID, a2.ID}, []string{got[0].ID, got[1].ID})
	})

	t.Run("other tenant sees an empty list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments", getToken(t, conf, otherTenant))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, "[]", rec.Body.String())
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a1.ID, getToken(t, conf, studentViewer))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got assignment.Assignment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, a1.ID, got.ID)
	})

	t.Run("cross-tenant retrieve is a 404", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a1.ID, getToken(t, conf, otherTenant))
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAssignmentAPI_update(t *testing.T) {
	srv, svc, conf := setup(t)
	a := createAssignment(t, svc, teacherViewer, "hw-1")

	t.Run("partial update", func(t *testing.T) {
		body := marshallObj(t, map[string]string{"name": "hw-renamed"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/assignments/"+a.ID, getToken(t, conf, teacherViewer), body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got assignment.Assignment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "hw-renamed", got.Name)
		assert.Equal(t, a.Course, got.Course)
	})

	t.Run("non-owner teacher gets a 404", func(t *testing.T) {
		other := assignment.Viewer{ID: "teach2", TenantID: "t1", IsTeacher: true}
		body := marshallObj(t, map[string]string{"name": "nope"})
		req, rec := newAuthRequest(http.MethodPut, "/v1/assignments/"+a.ID, getToken(t, conf, other), body)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAssignmentAPI_destroy(t *testing.T) {
	srv, svc, conf := setup(t)
	a := createAssignment(t, svc, teacherViewer, "hw-1")
	token := getToken(t, conf, teacherViewer)

	t.Run("unconfirmed delete is refused", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/assignments?id="+a.ID, token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("confirmed delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/assignments?id="+a.ID+"&confirm=true", token)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID, token)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAssignmentAPI_submissions(t *testing.T) {
	srv, svc, conf := setup(t)
	a := createAssignment(t, svc, teacherViewer, "hw-1")
	studToken := getToken(t, conf, studentViewer)

	t.Run("submit into a fresh round", func(t *testing.T) {
		body := marshallObj(t, echoapi.SubmissionRequest{FileName: "answers.pdf", Content: []byte("data")})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/submissions", studToken, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var sub assignment.SubmissionRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
		assert.Equal(t, "assignment-01", sub.Round)
		assert.Equal(t, "stud1__answers.pdf", sub.FileName)
	})

	t.Run("rounds listing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/rounds", studToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"rounds":["assignment-01"]}`, rec.Body.String())
	})

	t.Run("structure listing", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/structure", studToken)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Entries []storage.Entry `json:"entries"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Entries, 1)
		assert.Equal(t, "assignment-01", resp.Entries[0].Name)
	})

	t.Run("owner lists recorded submissions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/submissions", getToken(t, conf, teacherViewer))
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var subs []assignment.SubmissionRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
		require.Len(t, subs, 1)
	})

	t.Run("students cannot list submissions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/assignments/"+a.ID+"/submissions", studToken)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown round is a 400", func(t *testing.T) {
		body := marshallObj(t, echoapi.SubmissionRequest{Round: "assignment-99", FileName: "answers.pdf", Content: []byte("x")})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+a.ID+"/submissions", studToken, body)
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeFields(t, rec.Body.Bytes()), "round")
	})

	t.Run("git-backed assignment rejects submissions with a 405", func(t *testing.T) {
		git, err := svc.Create(ctx, teacherViewer, assignment.NewAssignment{
			Course:      "cs",
			Class:       "4a",
			Name:        "compilers",
			StorageType: assignment.StorageGit,
			GitURL:      "https://git.test.cd/cs/compilers.git",
			GitBranch:   "main",
		})
		require.NoError(t, err)

		body := marshallObj(t, echoapi.SubmissionRequest{FileName: "main.c", Content: []byte("x")})
		req, rec := newAuthRequest(http.MethodPost, "/v1/assignments/"+git.ID+"/submissions", studToken, body)
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
