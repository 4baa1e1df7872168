// Package remote talks to the cloud metadata store: a JSON document
// service organized into per-user and per-group collections. Documents
// are schemaless maps on the wire; the engine normalizes them into
// FileEntry values during pull-sync.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "collab-drive/pkg/errors"
	"collab-drive/pkg/logger"

	"collab-drive/internal/models"
)

// NamespaceKind distinguishes user and group document namespaces.
type NamespaceKind string

const (
	KindUser  NamespaceKind = "users"
	KindGroup NamespaceKind = "groups"
)

// Namespace is the scoping key under which metadata documents live.
type Namespace struct {
	Kind NamespaceKind
	ID   string
}

// UserNamespace returns the private namespace of a user.
func UserNamespace(userID string) Namespace {
	return Namespace{Kind: KindUser, ID: userID}
}

// GroupNamespace returns the shared namespace of a group.
func GroupNamespace(groupID string) Namespace {
	return Namespace{Kind: KindGroup, ID: groupID}
}

// IsGroup reports whether the namespace belongs to a group.
func (n Namespace) IsGroup() bool {
	return n.Kind == KindGroup
}

// filesPath is the collection path holding this namespace's entries.
func (n Namespace) filesPath() string {
	return fmt.Sprintf("%s/%s/files", n.Kind, url.PathEscape(n.ID))
}

// RawRecord is one metadata document as returned by the store, with the
// server-assigned id injected under "remoteId". Timestamp fields keep
// their server-native representation until normalization.
type RawRecord map[string]interface{}

// RemoteID returns the server-assigned document id of the record.
func (r RawRecord) RemoteID() string {
	id, _ := r["remoteId"].(string)
	return id
}

// Client defines the contract for the remote metadata store.
type Client interface {
	// EnsureUserDocument creates the user's parent document if absent.
	// Subcollection writes fail without it, so this must succeed before
	// the first metadata write for a user.
	EnsureUserDocument(ctx context.Context, userID string) error

	SaveEntry(ctx context.Context, entry *models.FileEntry, ns Namespace) (string, error)
	UpdateEntry(ctx context.Context, remoteID string, ns Namespace, fields map[string]interface{}) error
	DeleteEntry(ctx context.Context, remoteID string, ns Namespace) error
	ListEntries(ctx context.Context, ns Namespace) ([]RawRecord, error)

	// Notes live only in per-user namespaces.
	SaveNote(ctx context.Context, note *models.Note) (string, error)
	UpdateNote(ctx context.Context, remoteID, userID string, fields map[string]interface{}) error
	DeleteNote(ctx context.Context, remoteID, userID string) error
	ListNotes(ctx context.Context, userID string) ([]RawRecord, error)

	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	FindGroupByInviteCode(ctx context.Context, inviteCode string) (*models.Group, error)
	UpdateGroupMembers(ctx context.Context, groupID string, memberIDs []string) error
	ListGroupsForMember(ctx context.Context, userID string) ([]*models.Group, error)
}

// HTTPClient implements Client against the document service's REST API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logger.Logger
}

// NewHTTPClient creates a client for the document service at baseURL.
// The token is sent as a bearer credential on every request.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "base URL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidInput, "invalid base URL")
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger.NewWithComponent("remote"),
	}, nil
}

// EnsureUserDocument creates the user's parent document if absent.
func (c *HTTPClient) EnsureUserDocument(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "user id cannot be empty")
	}

	path := fmt.Sprintf("users/%s", url.PathEscape(userID))
	status, _, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d checking user document", status))
	}

	doc := map[string]interface{}{
		"uid":       userID,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	status, _, err = c.do(ctx, http.MethodPut, path, doc)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d creating user document", status))
	}
	c.logger.InfoWithFields("User document created", map[string]interface{}{"user_id": userID})
	return nil
}

// SaveEntry creates a metadata document for entry in the namespace and
// returns the server-assigned remote id.
func (c *HTTPClient) SaveEntry(ctx context.Context, entry *models.FileEntry, ns Namespace) (string, error) {
	if entry == nil {
		return "", apperrors.New(apperrors.ErrInvalidInput, "entry cannot be nil")
	}

	status, body, err := c.do(ctx, http.MethodPost, ns.filesPath(), EntryFields(entry))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d saving entry", status))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", apperrors.Wrap(err, apperrors.ErrRemoteFault, "save response carried no document id")
	}
	return created.ID, nil
}

// UpdateEntry applies a partial field update to an existing document.
func (c *HTTPClient) UpdateEntry(ctx context.Context, remoteID string, ns Namespace, fields map[string]interface{}) error {
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}

	path := fmt.Sprintf("%s/%s", ns.filesPath(), url.PathEscape(remoteID))
	status, _, err := c.do(ctx, http.MethodPatch, path, fields)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("document %q not found", remoteID))
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d updating entry", status))
	}
	return nil
}

// DeleteEntry removes a document from the namespace.
func (c *HTTPClient) DeleteEntry(ctx context.Context, remoteID string, ns Namespace) error {
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}

	path := fmt.Sprintf("%s/%s", ns.filesPath(), url.PathEscape(remoteID))
	status, _, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d deleting entry", status))
	}
	return nil
}

// ListEntries fetches the full raw record list for a namespace. Each
// record gets the document id injected under "remoteId".
func (c *HTTPClient) ListEntries(ctx context.Context, ns Namespace) ([]RawRecord, error) {
	status, body, err := c.do(ctx, http.MethodGet, ns.filesPath(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d listing entries", status))
	}

	var listing struct {
		Documents []struct {
			ID     string                 `json:"id"`
			Fields map[string]interface{} `json:"fields"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to decode listing")
	}

	records := make([]RawRecord, 0, len(listing.Documents))
	for _, doc := range listing.Documents {
		record := RawRecord{}
		for k, v := range doc.Fields {
			record[k] = v
		}
		record["remoteId"] = doc.ID
		records = append(records, record)
	}
	return records, nil
}

// notesPath is the collection path holding a user's note documents.
func notesPath(userID string) string {
	return fmt.Sprintf("users/%s/notes", url.PathEscape(userID))
}

// SaveNote creates a note document in the owner's namespace and returns
// the server-assigned remote id.
func (c *HTTPClient) SaveNote(ctx context.Context, note *models.Note) (string, error) {
	if note == nil {
		return "", apperrors.New(apperrors.ErrInvalidInput, "note cannot be nil")
	}
	if note.OwnerUserID == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, "note must have an owner")
	}

	status, body, err := c.do(ctx, http.MethodPost, notesPath(note.OwnerUserID), NoteFields(note))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d saving note", status))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
		return "", apperrors.Wrap(err, apperrors.ErrRemoteFault, "save response carried no document id")
	}
	return created.ID, nil
}

// UpdateNote applies a partial field update to an existing note document.
func (c *HTTPClient) UpdateNote(ctx context.Context, remoteID, userID string, fields map[string]interface{}) error {
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}

	path := fmt.Sprintf("%s/%s", notesPath(userID), url.PathEscape(remoteID))
	status, _, err := c.do(ctx, http.MethodPatch, path, fields)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("note %q not found", remoteID))
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d updating note", status))
	}
	return nil
}

// DeleteNote removes a note document from the owner's namespace.
func (c *HTTPClient) DeleteNote(ctx context.Context, remoteID, userID string) error {
	if remoteID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "remote id cannot be empty")
	}

	path := fmt.Sprintf("%s/%s", notesPath(userID), url.PathEscape(remoteID))
	status, _, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusNotFound {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d deleting note", status))
	}
	return nil
}

// ListNotes fetches the full raw note record list for a user, with the
// document id injected under "remoteId" as for file entries.
func (c *HTTPClient) ListNotes(ctx context.Context, userID string) ([]RawRecord, error) {
	status, body, err := c.do(ctx, http.MethodGet, notesPath(userID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d listing notes", status))
	}

	var listing struct {
		Documents []struct {
			ID     string                 `json:"id"`
			Fields map[string]interface{} `json:"fields"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to decode note listing")
	}

	records := make([]RawRecord, 0, len(listing.Documents))
	for _, doc := range listing.Documents {
		record := RawRecord{}
		for k, v := range doc.Fields {
			record[k] = v
		}
		record["remoteId"] = doc.ID
		records = append(records, record)
	}
	return records, nil
}

// CreateGroup stores a group document keyed by the group's own id.
func (c *HTTPClient) CreateGroup(ctx context.Context, group *models.Group) error {
	if group == nil || group.ID == "" {
		return apperrors.New(apperrors.ErrInvalidInput, "group must have an id")
	}

	path := fmt.Sprintf("groups/%s", url.PathEscape(group.ID))
	status, _, err := c.do(ctx, http.MethodPut, path, group)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d creating group", status))
	}
	return nil
}

// GetGroup fetches a group document by id.
func (c *HTTPClient) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	path := fmt.Sprintf("groups/%s", url.PathEscape(groupID))
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apperrors.New(apperrors.ErrNotFound, "Group not found")
	}
	if status != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d getting group", status))
	}

	var group models.Group
	if err := json.Unmarshal(body, &group); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to decode group")
	}
	return &group, nil
}

// FindGroupByInviteCode looks up a group by exact invite code match.
func (c *HTTPClient) FindGroupByInviteCode(ctx context.Context, inviteCode string) (*models.Group, error) {
	groups, err := c.queryGroups(ctx, url.Values{"inviteCode": {inviteCode}})
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, apperrors.New(apperrors.ErrNotFound, "Invalid invite code")
	}
	return groups[0], nil
}

// UpdateGroupMembers replaces a group's membership set.
func (c *HTTPClient) UpdateGroupMembers(ctx context.Context, groupID string, memberIDs []string) error {
	path := fmt.Sprintf("groups/%s", url.PathEscape(groupID))
	update := map[string]interface{}{"member_ids": memberIDs}
	status, _, err := c.do(ctx, http.MethodPatch, path, update)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return apperrors.New(apperrors.ErrNotFound, "Group not found")
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d updating group members", status))
	}
	return nil
}

// ListGroupsForMember lists every group whose membership set contains
// the given user.
func (c *HTTPClient) ListGroupsForMember(ctx context.Context, userID string) ([]*models.Group, error) {
	return c.queryGroups(ctx, url.Values{"member": {userID}})
}

func (c *HTTPClient) queryGroups(ctx context.Context, query url.Values) ([]*models.Group, error) {
	status, body, err := c.do(ctx, http.MethodGet, "groups?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, apperrors.New(apperrors.ErrRemoteFault,
			fmt.Sprintf("unexpected status %d querying groups", status))
	}

	var listing struct {
		Groups []*models.Group `json:"groups"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to decode groups")
	}
	return listing.Groups, nil
}

// do issues one request and returns the status code and body. Transport
// failures are wrapped as RemoteFault; HTTP status handling is left to
// the caller since 404 is meaningful for lookups.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to encode request body")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return 0, nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "request failed")
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, apperrors.Wrap(err, apperrors.ErrRemoteFault, "failed to read response")
	}
	return res.StatusCode, data, nil
}

// NoteFields maps a Note onto its wire representation.
func NoteFields(note *models.Note) map[string]interface{} {
	return map[string]interface{}{
		"title":      note.Title,
		"content":    note.Content,
		"color":      note.Color,
		"userId":     note.OwnerUserID,
		"createdAt":  note.CreatedAt.UTC().Format(time.RFC3339),
		"modifiedAt": note.ModifiedAt.UTC().Format(time.RFC3339),
	}
}

// EntryFields maps a FileEntry onto its wire representation. Timestamps
// travel as RFC3339 strings; the server may hand them back as native
// timestamp objects instead, which normalization accepts.
func EntryFields(entry *models.FileEntry) map[string]interface{} {
	return map[string]interface{}{
		"name":        entry.Name,
		"path":        entry.ContentPath,
		"description": entry.Description,
		"parentPath":  entry.ParentPath,
		"isFolder":    entry.IsFolder,
		"mimeType":    entry.MimeType,
		"size":        entry.SizeBytes,
		"blobUrl":     entry.RemoteBlobURL,
		"blobId":      entry.RemoteBlobID,
		"userId":      entry.OwnerUserID,
		"groupId":     entry.GroupID,
		"createdAt":   entry.CreatedAt.UTC().Format(time.RFC3339),
		"modifiedAt":  entry.ModifiedAt.UTC().Format(time.RFC3339),
	}
}
