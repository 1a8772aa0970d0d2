package phab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/qiniu/x/xlog"
)

// API is the set of Conduit operations the tool servers consume. All calls
// are single round trips; there is no retry layer.
type API interface {
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	GetTaskComments(ctx context.Context, taskID string) ([]models.RawComment, error)
	AddTaskComment(ctx context.Context, taskID, comment string) error
	SubscribeToTask(ctx context.Context, taskID string, userPHIDs []string) error

	GetRevision(ctx context.Context, revisionID string) (*models.Revision, error)
	GetRevisionComments(ctx context.Context, revisionID string) ([]models.RawComment, error)
	GetRawDiff(ctx context.Context, revisionID string) (string, error)
	AddRevisionComment(ctx context.Context, revisionID, comment string) error
	AddInlineComment(ctx context.Context, revisionID, path string, line int, content string, isNewFile bool) error
	AcceptRevision(ctx context.Context, revisionID string) error
	RequestChanges(ctx context.Context, revisionID, comment string) error
	SubscribeToRevision(ctx context.Context, revisionID string, userPHIDs []string) error
}

// Client talks to one Phabricator instance with one API token.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

var _ API = (*Client)(nil)

// NewClient creates a Conduit client. host is the instance base URL without
// the /api suffix.
func NewClient(host, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("phabricator API token is required")
	}
	if host == "" {
		return nil, fmt.Errorf("phabricator URL is required")
	}

	return &Client{
		host:       strings.TrimRight(host, "/"),
		token:      token,
		httpClient: newHTTPClient(),
	}, nil
}

// Conduit wire shapes shared by the *.search endpoints.

type searchResponse struct {
	Data []searchItem `json:"data"`
}

type searchItem struct {
	ID     int             `json:"id"`
	PHID   string          `json:"phid"`
	Fields json.RawMessage `json:"fields"`
}

type namedField struct {
	Name string `json:"name"`
}

type rawField struct {
	Raw string `json:"raw"`
}

type taskFields struct {
	Name        string     `json:"name"`
	Description rawField   `json:"description"`
	Status      namedField `json:"status"`
	Priority    namedField `json:"priority"`
	AuthorPHID  string     `json:"authorPHID"`
	OwnerPHID   string     `json:"ownerPHID"`
}

type revisionFields struct {
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	Status     namedField `json:"status"`
	AuthorPHID string     `json:"authorPHID"`
	DiffPHID   string     `json:"diffPHID"`
}

type transactionSearchResponse struct {
	Data []transactionItem `json:"data"`
}

type transactionItem struct {
	ID          int                  `json:"id"`
	PHID        string               `json:"phid"`
	Type        string               `json:"type"`
	AuthorPHID  string               `json:"authorPHID"`
	DateCreated int64                `json:"dateCreated"`
	Fields      transactionFields    `json:"fields"`
	Comments    []transactionComment `json:"comments"`
}

type transactionFields struct {
	Path string `json:"path"`
	Line int    `json:"line"`
}

type transactionComment struct {
	Content rawField `json:"content"`
}

type editTransaction struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// GetTask fetches a Maniphest task by ID (without the 'T' prefix).
func (c *Client) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	id, err := parseObjectID(taskID, "task")
	if err != nil {
		return nil, err
	}

	var result searchResponse
	params := map[string]interface{}{
		"constraints": map[string]interface{}{"ids": []int{id}},
	}
	if err := c.call(ctx, "maniphest.search", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get task T%s: %w", taskID, err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("task T%s not found", taskID)
	}

	item := result.Data[0]
	var fields taskFields
	if err := json.Unmarshal(item.Fields, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode task T%s fields: %w", taskID, err)
	}

	return &models.Task{
		ID:          item.ID,
		PHID:        item.PHID,
		Title:       fields.Name,
		Status:      fields.Status.Name,
		Priority:    fields.Priority.Name,
		Description: fields.Description.Raw,
		AuthorPHID:  fields.AuthorPHID,
		OwnerPHID:   fields.OwnerPHID,
	}, nil
}

// GetTaskComments returns the comment transactions of a task, oldest first.
// A failure to fetch comments degrades to an empty list; the task itself is
// still useful without them.
func (c *Client) GetTaskComments(ctx context.Context, taskID string) ([]models.RawComment, error) {
	xl := xlog.NewWith(ctx)

	if _, err := parseObjectID(taskID, "task"); err != nil {
		return nil, err
	}

	transactions, err := c.searchTransactions(ctx, "T"+taskID)
	if err != nil {
		xl.Warnf("Could not get comments for task T%s: %v", taskID, err)
		return nil, nil
	}

	var comments []models.RawComment
	for _, t := range transactions {
		if t.Type != "comment" {
			continue
		}
		comment := toRawComment(t)
		if comment.Text == "" {
			continue
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// AddTaskComment posts a comment on a task.
func (c *Client) AddTaskComment(ctx context.Context, taskID, comment string) error {
	if _, err := parseObjectID(taskID, "task"); err != nil {
		return err
	}
	err := c.edit(ctx, "maniphest.edit", "T"+taskID, []editTransaction{
		{Type: "comment", Value: comment},
	})
	if err != nil {
		return fmt.Errorf("failed to add comment to task T%s: %w", taskID, err)
	}
	return nil
}

// SubscribeToTask adds subscribers to a task.
func (c *Client) SubscribeToTask(ctx context.Context, taskID string, userPHIDs []string) error {
	if _, err := parseObjectID(taskID, "task"); err != nil {
		return err
	}
	err := c.edit(ctx, "maniphest.edit", "T"+taskID, []editTransaction{
		{Type: "subscribers.add", Value: userPHIDs},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe users to task T%s: %w", taskID, err)
	}
	return nil
}

// GetRevision fetches a Differential revision by ID (without the 'D'
// prefix).
func (c *Client) GetRevision(ctx context.Context, revisionID string) (*models.Revision, error) {
	id, err := parseObjectID(revisionID, "revision")
	if err != nil {
		return nil, err
	}

	var result searchResponse
	params := map[string]interface{}{
		"constraints": map[string]interface{}{"ids": []int{id}},
	}
	if err := c.call(ctx, "differential.revision.search", params, &result); err != nil {
		return nil, fmt.Errorf("failed to get revision D%s: %w", revisionID, err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("revision D%s not found", revisionID)
	}

	item := result.Data[0]
	var fields revisionFields
	if err := json.Unmarshal(item.Fields, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode revision D%s fields: %w", revisionID, err)
	}

	return &models.Revision{
		ID:         item.ID,
		PHID:       item.PHID,
		Title:      fields.Title,
		Status:     fields.Status.Name,
		AuthorPHID: fields.AuthorPHID,
		Summary:    fields.Summary,
		DiffPHID:   fields.DiffPHID,
	}, nil
}

// GetRevisionComments returns the review discussion of a revision: general
// comments, inline comments, and review actions, in transaction order.
func (c *Client) GetRevisionComments(ctx context.Context, revisionID string) ([]models.RawComment, error) {
	xl := xlog.NewWith(ctx)

	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return nil, err
	}

	transactions, err := c.searchTransactions(ctx, "D"+revisionID)
	if err != nil {
		xl.Warnf("Could not get comments for revision D%s: %v", revisionID, err)
		return nil, nil
	}

	var comments []models.RawComment
	for _, t := range transactions {
		switch t.Type {
		case "comment":
			comment := toRawComment(t)
			if comment.Text == "" {
				continue
			}
			comments = append(comments, comment)
		case "inline":
			comment := toRawComment(t)
			comment.Type = models.CommentTypeInline
			comment.Path = t.Fields.Path
			comment.Line = t.Fields.Line
			comments = append(comments, comment)
		case "accept", "reject", "request-changes":
			comment := toRawComment(t)
			comment.Type = models.CommentTypeAction
			comment.Action = t.Type
			comments = append(comments, comment)
		}
	}
	return comments, nil
}

// GetRawDiff fetches the unified diff text of a revision's current diff.
func (c *Client) GetRawDiff(ctx context.Context, revisionID string) (string, error) {
	id, err := parseObjectID(revisionID, "revision")
	if err != nil {
		return "", err
	}

	var raw string
	params := map[string]interface{}{"revisionID": id}
	if err := c.call(ctx, "differential.getrawdiff", params, &raw); err != nil {
		return "", fmt.Errorf("failed to get raw diff for revision D%s: %w", revisionID, err)
	}
	return raw, nil
}

// AddRevisionComment posts a general comment on a revision.
func (c *Client) AddRevisionComment(ctx context.Context, revisionID, comment string) error {
	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return err
	}
	err := c.edit(ctx, "differential.revision.edit", "D"+revisionID, []editTransaction{
		{Type: "comment", Value: comment},
	})
	if err != nil {
		return fmt.Errorf("failed to add comment to revision D%s: %w", revisionID, err)
	}
	return nil
}

// AddInlineComment anchors a comment to a specific line of a file in the
// revision's diff. isNewFile selects the post-change side.
func (c *Client) AddInlineComment(ctx context.Context, revisionID, path string, line int, content string, isNewFile bool) error {
	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return err
	}
	err := c.edit(ctx, "differential.revision.edit", "D"+revisionID, []editTransaction{
		{
			Type: "inline",
			Value: map[string]interface{}{
				"content":   content,
				"path":      path,
				"line":      line,
				"isNewFile": isNewFile,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add inline comment to revision D%s: %w", revisionID, err)
	}
	return nil
}

// AcceptRevision accepts a revision.
func (c *Client) AcceptRevision(ctx context.Context, revisionID string) error {
	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return err
	}
	err := c.edit(ctx, "differential.revision.edit", "D"+revisionID, []editTransaction{
		{Type: "accept", Value: true},
	})
	if err != nil {
		return fmt.Errorf("failed to accept revision D%s: %w", revisionID, err)
	}
	return nil
}

// RequestChanges rejects a revision, optionally with an explanation.
func (c *Client) RequestChanges(ctx context.Context, revisionID, comment string) error {
	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return err
	}
	transactions := []editTransaction{{Type: "reject", Value: true}}
	if comment != "" {
		transactions = append(transactions, editTransaction{Type: "comment", Value: comment})
	}
	err := c.edit(ctx, "differential.revision.edit", "D"+revisionID, transactions)
	if err != nil {
		return fmt.Errorf("failed to request changes for revision D%s: %w", revisionID, err)
	}
	return nil
}

// SubscribeToRevision adds subscribers to a revision.
func (c *Client) SubscribeToRevision(ctx context.Context, revisionID string, userPHIDs []string) error {
	if _, err := parseObjectID(revisionID, "revision"); err != nil {
		return err
	}
	err := c.edit(ctx, "differential.revision.edit", "D"+revisionID, []editTransaction{
		{Type: "subscribers.add", Value: userPHIDs},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe users to revision D%s: %w", revisionID, err)
	}
	return nil
}

func (c *Client) searchTransactions(ctx context.Context, objectIdentifier string) ([]transactionItem, error) {
	var result transactionSearchResponse
	params := map[string]interface{}{
		"objectIdentifier": objectIdentifier,
	}
	if err := c.call(ctx, "transaction.search", params, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *Client) edit(ctx context.Context, method, objectIdentifier string, transactions []editTransaction) error {
	params := map[string]interface{}{
		"transactions":     transactions,
		"objectIdentifier": objectIdentifier,
	}
	return c.call(ctx, method, params, nil)
}

func toRawComment(t transactionItem) models.RawComment {
	comment := models.RawComment{
		PHID:      t.PHID,
		Author:    t.AuthorPHID,
		Type:      models.CommentTypeGeneral,
		Timestamp: t.DateCreated,
	}
	if len(t.Comments) > 0 {
		comment.Text = t.Comments[0].Content.Raw
	}
	return comment
}

func parseObjectID(id, kind string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %q", kind, id)
	}
	return n, nil
}
