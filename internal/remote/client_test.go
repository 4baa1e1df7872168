package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "collab-drive/pkg/errors"

	"collab-drive/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(server.URL, "test-token")
	require.NoError(t, err)
	return client
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient("", "token")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidInput, apperrors.Code(err))
}

func TestHTTPClient_SaveEntry(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "doc-1"})
	}))

	entry := models.NewFileEntry("notes.txt", "/notes.txt", "", nil, false)
	entry.OwnerUserID = "user-1"

	id, err := client.SaveEntry(context.Background(), entry, UserNamespace("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
	assert.Equal(t, "/users/user-1/files", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "notes.txt", gotBody["name"])
	assert.Equal(t, false, gotBody["isFolder"])
}

func TestHTTPClient_SaveEntry_MissingID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	entry := models.NewFileEntry("a.txt", "/a.txt", "", nil, false)
	_, err := client.SaveEntry(context.Background(), entry, UserNamespace("user-1"))
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrRemoteFault, apperrors.Code(err))
}

func TestHTTPClient_EnsureUserDocument_CreatesWhenMissing(t *testing.T) {
	var puts int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			puts++
			w.WriteHeader(http.StatusCreated)
		}
	}))

	require.NoError(t, client.EnsureUserDocument(context.Background(), "user-1"))
	assert.Equal(t, 1, puts)
}

func TestHTTPClient_EnsureUserDocument_NoopWhenPresent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "Existing document should not be rewritten")
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.EnsureUserDocument(context.Background(), "user-1"))
}

func TestHTTPClient_ListEntries_InjectsRemoteID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups/group-1/files", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"documents": []map[string]interface{}{
				{"id": "doc-1", "fields": map[string]interface{}{"name": "a.txt", "isFolder": false}},
				{"id": "doc-2", "fields": map[string]interface{}{"name": "docs", "isFolder": true}},
			},
		})
	}))

	records, err := client.ListEntries(context.Background(), GroupNamespace("group-1"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doc-1", records[0].RemoteID())
	assert.Equal(t, "a.txt", records[0]["name"])
	assert.Equal(t, "doc-2", records[1].RemoteID())
}

func TestHTTPClient_ListEntries_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client, err := NewHTTPClient(server.URL, "")
	require.NoError(t, err)
	server.Close()

	_, err = client.ListEntries(context.Background(), UserNamespace("user-1"))
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrRemoteFault, apperrors.Code(err))
}

func TestHTTPClient_UpdateEntry_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.UpdateEntry(context.Background(), "doc-9", UserNamespace("user-1"),
		map[string]interface{}{"name": "renamed.txt"})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHTTPClient_DeleteEntry_ToleratesMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	// Deleting an already-deleted document is not an error.
	assert.NoError(t, client.DeleteEntry(context.Background(), "doc-9", UserNamespace("user-1")))
}

func TestHTTPClient_FindGroupByInviteCode(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AB12CD34", r.URL.Query().Get("inviteCode"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"groups": []*models.Group{{ID: "group-1", Name: "Design Team", InviteCode: "AB12CD34"}},
		})
	}))

	group, err := client.FindGroupByInviteCode(context.Background(), "AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, "group-1", group.ID)
}

func TestHTTPClient_FindGroupByInviteCode_Unknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"groups": []*models.Group{}})
	}))

	_, err := client.FindGroupByInviteCode(context.Background(), "NOPE0000")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "Invalid invite code", appErr.Message)
}

func TestHTTPClient_UpdateGroupMembers(t *testing.T) {
	var gotBody map[string][]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := client.UpdateGroupMembers(context.Background(), "group-1", []string{"user-1", "user-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, gotBody["member_ids"])
}

func TestEntryFields(t *testing.T) {
	parentID := int64(4)
	entry := models.NewFileEntry("notes.txt", "/docs/notes.txt", "desc", &parentID, false)
	entry.OwnerUserID = "user-1"
	entry.ParentPath = "/docs"
	entry.SizeBytes = 512
	entry.RemoteBlobURL = "https://bucket.s3.amazonaws.com/k"
	entry.RemoteBlobID = "k"

	fields := EntryFields(entry)

	assert.Equal(t, "notes.txt", fields["name"])
	assert.Equal(t, "/docs/notes.txt", fields["path"])
	assert.Equal(t, "/docs", fields["parentPath"])
	assert.Equal(t, int64(512), fields["size"])
	assert.Equal(t, "user-1", fields["userId"])

	// Timestamps travel as RFC3339 strings.
	createdAt, ok := fields["createdAt"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, createdAt)
	assert.NoError(t, err)

	// Local-only fields stay off the wire.
	_, hasLocal := fields["localId"]
	assert.False(t, hasLocal)
}

func TestHTTPClient_SaveNote(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]interface{}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "note-1"})
	}))

	note := models.NewNote("Shopping", "milk")
	note.Color = 2
	note.OwnerUserID = "user-1"

	id, err := client.SaveNote(context.Background(), note)
	require.NoError(t, err)
	assert.Equal(t, "note-1", id)
	assert.Equal(t, "/users/user-1/notes", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Shopping", gotBody["title"])
	assert.Equal(t, "milk", gotBody["content"])
	assert.Equal(t, float64(2), gotBody["color"])
	assert.Equal(t, "user-1", gotBody["userId"])
}

func TestHTTPClient_SaveNote_RequiresOwner(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("Request should not reach the server")
	}))

	_, err := client.SaveNote(context.Background(), models.NewNote("t", "c"))
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidInput, apperrors.Code(err))
}

func TestHTTPClient_UpdateNote_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	err := client.UpdateNote(context.Background(), "note-9", "user-1", map[string]interface{}{"title": "x"})
	assert.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHTTPClient_DeleteNote_ToleratesMissing(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	assert.NoError(t, client.DeleteNote(context.Background(), "note-9", "user-1"))
}

func TestHTTPClient_ListNotes_InjectsRemoteID(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/user-1/notes", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"documents": []map[string]interface{}{
				{"id": "note-1", "fields": map[string]interface{}{"title": "a"}},
				{"id": "note-2", "fields": map[string]interface{}{"title": "b"}},
			},
		})
	}))

	records, err := client.ListNotes(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "note-1", records[0].RemoteID())
	assert.Equal(t, "a", records[0]["title"])
	assert.Equal(t, "note-2", records[1].RemoteID())
}

func TestNoteFields(t *testing.T) {
	note := models.NewNote("Shopping", "milk")
	note.Color = 4
	note.OwnerUserID = "user-1"
	note.CreatedAt = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	note.ModifiedAt = time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC)

	fields := NoteFields(note)
	assert.Equal(t, "Shopping", fields["title"])
	assert.Equal(t, "milk", fields["content"])
	assert.Equal(t, 4, fields["color"])
	assert.Equal(t, "user-1", fields["userId"])
	assert.Equal(t, "2024-03-01T10:00:00Z", fields["createdAt"])
	assert.Equal(t, "2024-03-02T11:30:00Z", fields["modifiedAt"])
}
