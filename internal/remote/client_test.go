package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notesync/internal/apperr"
	"github.com/starford/notesync/internal/models"
)

const (
	testAPI  = "https://api.test"
	testAuth = "https://auth.test"
)

func setupClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	c := NewClient(Config{
		APIURL:     testAPI,
		AuthURL:    testAuth,
		Email:      "me@example.com",
		Password:   "secret",
		PageSize:   2,
		HTTPClient: &http.Client{Transport: mt},
	})
	return c, mt
}

func registerLogin(mt *httpmock.MockTransport) {
	mt.RegisterResponder(http.MethodPost, testAuth+"/api/login",
		func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			decoded, err := base64.StdEncoding.DecodeString(string(raw))
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad encoding"), nil
			}
			form, _ := url.ParseQuery(string(decoded))
			if form.Get("email") != "me@example.com" || form.Get("password") != "secret" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, "nope"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, "TOKEN123\n"), nil
		})
}

func TestListNotes_FollowsMarksAndDropsDeleted(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)

	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/index",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			if q.Get("auth") != "TOKEN123" || q.Get("email") != "me@example.com" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, ""), nil
			}
			if q.Get("mark") == "" {
				return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
					"count": 2,
					"data": []map[string]any{
						{"key": "a", "syncnum": 1, "deleted": 0},
						{"key": "b", "syncnum": 4, "deleted": 1},
					},
					"mark": "page2",
				})
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"count": 1,
				"data":  []map[string]any{{"key": "c", "syncnum": 9, "modifydate": "1337007469.836000"}},
			})
		})

	list, err := c.ListNotes(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Key)
	assert.Equal(t, "c", list[1].Key)
	assert.Equal(t, 9, list[1].Syncnum)

	info := mt.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+testAuth+"/api/login"], "login must happen exactly once")
}

func TestListNotes_RepeatedMarkIsAnError(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/index",
		httpmock.NewStringResponder(http.StatusOK, `{"count":0,"data":[],"mark":"same"}`))

	_, err := c.ListNotes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
}

func TestGetNote(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/data/k1",
		httpmock.NewStringResponder(http.StatusOK,
			`{"key":"k1","content":"Hello\nworld","syncnum":5,"version":3,"createdate":"1.5","modifydate":"2.5","tags":["x"],"systemtags":[],"deleted":0}`))

	n, err := c.GetNote(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "Hello\nworld", n.Content)
	assert.Equal(t, 5, n.Syncnum)
	assert.Equal(t, models.Timestamp(2.5), n.ModifyDate)
	assert.Equal(t, []string{"x"}, n.Tags)
}

func TestGetNote_NotFound(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/data/gone",
		httpmock.NewStringResponder(http.StatusNotFound, "missing"))

	_, err := c.GetNote(context.Background(), "gone")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateNote_CreateStripsLocalFields(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)

	var sent map[string]any
	mt.RegisterResponder(http.MethodPost, testAPI+"/api2/data",
		func(req *http.Request) (*http.Response, error) {
			_ = json.NewDecoder(req.Body).Decode(&sent)
			// Content is omitted from the response, as the service does.
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"key": "srv1", "syncnum": 1, "version": 1, "createdate": "10", "modifydate": "10",
			})
		})

	local := &models.Note{
		LocalKey:    "local1",
		Content:     "Shopping list\nmilk",
		CreateDate:  10,
		ModifyDate:  10,
		LModifyDate: 10,
		LocalTouch:  true,
	}
	got, err := c.UpdateNote(context.Background(), local)
	require.NoError(t, err)
	assert.Equal(t, "srv1", got.Key)
	assert.Equal(t, "Shopping list\nmilk", got.Content)
	assert.Equal(t, 1, got.Syncnum)
	assert.False(t, got.LocalTouch)

	assert.NotContains(t, sent, "localkey")
	assert.NotContains(t, sent, "localtouch")
	assert.NotContains(t, sent, "lmodifydate")
	assert.Equal(t, "Shopping list\nmilk", sent["content"])
	// Caller's record is untouched.
	assert.Equal(t, "local1", local.LocalKey)
}

func TestUpdateNote_ExistingUsesKeyPath(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodPost, testAPI+"/api2/data/k9",
		httpmock.NewStringResponder(http.StatusOK, `{"key":"k9","syncnum":8,"content":"new"}`))

	got, err := c.UpdateNote(context.Background(), &models.Note{Key: "k9", Content: "new", Syncnum: 7, LocalTouch: true})
	require.NoError(t, err)
	assert.Equal(t, 8, got.Syncnum)
}

func TestUpdateNote_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"conflict", http.StatusConflict, apperr.ErrRemoteConflict},
		{"precondition", http.StatusPreconditionFailed, apperr.ErrRemoteConflict},
		{"unauthorized", http.StatusUnauthorized, apperr.ErrRemoteAuth},
		{"server error", http.StatusBadGateway, apperr.ErrRemoteUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mt := setupClient(t)
			registerLogin(mt)
			mt.RegisterResponder(http.MethodPost, testAPI+"/api2/data/k1",
				httpmock.NewStringResponder(tt.status, "rejected"))

			got, err := c.UpdateNote(context.Background(), &models.Note{Key: "k1", Content: "x"})
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateNote_MissingKeyInResponse(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodPost, testAPI+"/api2/data",
		httpmock.NewStringResponder(http.StatusOK, `{"syncnum":1}`))

	_, err := c.UpdateNote(context.Background(), &models.Note{LocalKey: "l", Content: "x"})
	assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
}

func TestLoginRejected_SurfacesOnFirstCall(t *testing.T) {
	mt := httpmock.NewMockTransport()
	c := NewClient(Config{
		APIURL: testAPI, AuthURL: testAuth,
		Email: "me@example.com", Password: "wrong",
		HTTPClient: &http.Client{Transport: mt},
	})
	registerLogin(mt)

	_, err := c.ListNotes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRemoteAuth)
	assert.Zero(t, mt.GetCallCountInfo()["GET "+testAPI+"/api2/index"])
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient(Config{APIURL: testAPI, AuthURL: testAuth, HTTPClient: &http.Client{Transport: httpmock.NewMockTransport()}})
	_, err := c.GetNote(context.Background(), "k")
	assert.ErrorIs(t, err, apperr.ErrRemoteAuth)
}

func TestNetworkError_IsUnavailable(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/index",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := c.ListNotes(context.Background())
	assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
	assert.NotContains(t, err.Error(), "TOKEN123", "token must be redacted from errors")
}

func TestMalformedBody_IsUnavailable(t *testing.T) {
	c, mt := setupClient(t)
	registerLogin(mt)
	mt.RegisterResponder(http.MethodGet, testAPI+"/api2/data/k1",
		httpmock.NewStringResponder(http.StatusOK, "<html>maintenance</html>"))

	_, err := c.GetNote(context.Background(), "k1")
	assert.ErrorIs(t, err, apperr.ErrRemoteUnavailable)
}
