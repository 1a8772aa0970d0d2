package servers

import (
	"context"
	"fmt"

	"github.com/qiniu/phabmcp/internal/phab"
	"github.com/qiniu/phabmcp/pkg/models"
)

// fakeAPI is a canned-data phab.API for server tests.
type fakeAPI struct {
	task             *models.Task
	taskComments     []models.RawComment
	revision         *models.Revision
	revisionComments []models.RawComment
	rawDiff          string
	err              error

	taskComment       string
	revisionComment   string
	inlinePath        string
	inlineLine        int
	inlineContent     string
	inlineIsNewFile   bool
	accepted          bool
	changesRequested  bool
	requestComment    string
	subscribedPHIDs   []string
	subscribedObjects []string
}

var _ phab.API = (*fakeAPI)(nil)

func (f *fakeAPI) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.task == nil {
		return nil, fmt.Errorf("task T%s not found", taskID)
	}
	return f.task, nil
}

func (f *fakeAPI) GetTaskComments(ctx context.Context, taskID string) ([]models.RawComment, error) {
	return f.taskComments, f.err
}

func (f *fakeAPI) AddTaskComment(ctx context.Context, taskID, comment string) error {
	f.taskComment = comment
	return f.err
}

func (f *fakeAPI) SubscribeToTask(ctx context.Context, taskID string, userPHIDs []string) error {
	f.subscribedObjects = append(f.subscribedObjects, "T"+taskID)
	f.subscribedPHIDs = userPHIDs
	return f.err
}

func (f *fakeAPI) GetRevision(ctx context.Context, revisionID string) (*models.Revision, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.revision == nil {
		return nil, fmt.Errorf("revision D%s not found", revisionID)
	}
	return f.revision, nil
}

func (f *fakeAPI) GetRevisionComments(ctx context.Context, revisionID string) ([]models.RawComment, error) {
	return f.revisionComments, f.err
}

func (f *fakeAPI) GetRawDiff(ctx context.Context, revisionID string) (string, error) {
	return f.rawDiff, f.err
}

func (f *fakeAPI) AddRevisionComment(ctx context.Context, revisionID, comment string) error {
	f.revisionComment = comment
	return f.err
}

func (f *fakeAPI) AddInlineComment(ctx context.Context, revisionID, path string, line int, content string, isNewFile bool) error {
	f.inlinePath = path
	f.inlineLine = line
	f.inlineContent = content
	f.inlineIsNewFile = isNewFile
	return f.err
}

func (f *fakeAPI) AcceptRevision(ctx context.Context, revisionID string) error {
	f.accepted = true
	return f.err
}

func (f *fakeAPI) RequestChanges(ctx context.Context, revisionID, comment string) error {
	f.changesRequested = true
	f.requestComment = comment
	return f.err
}

func (f *fakeAPI) SubscribeToRevision(ctx context.Context, revisionID string, userPHIDs []string) error {
	f.subscribedObjects = append(f.subscribedObjects, "D"+revisionID)
	f.subscribedPHIDs = userPHIDs
	return f.err
}

// fakeSource hands out a fixed API and records the token it was asked for.
type fakeSource struct {
	api       phab.API
	err       error
	lastToken string
}

func (f *fakeSource) Client(apiToken string) (phab.API, error) {
	f.lastToken = apiToken
	if f.err != nil {
		return nil, f.err
	}
	return f.api, nil
}

func toolCall(name string, args map[string]interface{}) *models.ToolCall {
	return &models.ToolCall{
		ID: "call-1",
		Function: models.ToolFunction{
			Name:      name,
			Arguments: args,
		},
	}
}
