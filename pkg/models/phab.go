package models

// Phabricator domain objects. Everything here is built fresh per tool
// invocation from Conduit responses and discarded when the call returns.

// Task is a Maniphest task.
type Task struct {
	ID          int    `json:"id"`
	PHID        string `json:"phid"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Description string `json:"description"`
	AuthorPHID  string `json:"author_phid,omitempty"`
	OwnerPHID   string `json:"owner_phid,omitempty"`
}

// Revision is a Differential revision.
type Revision struct {
	ID         int    `json:"id"`
	PHID       string `json:"phid"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	AuthorPHID string `json:"author_phid"`
	Summary    string `json:"summary"`
	DiffPHID   string `json:"diff_phid,omitempty"`
}

// Comment types as they appear in the Conduit transaction stream.
const (
	CommentTypeInline  = "inline"
	CommentTypeGeneral = "general"
	CommentTypeAction  = "action"
)

// RawComment is a single review comment or review action, immutable once
// fetched.
type RawComment struct {
	PHID      string `json:"phid,omitempty"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Type      string `json:"type"`             // inline, general, action
	Action    string `json:"action,omitempty"` // accept, reject, request-changes
	Path      string `json:"path,omitempty"`   // inline comments only
	Line      int    `json:"line,omitempty"`   // inline comments only
	Timestamp int64  `json:"timestamp,omitempty"`
}

// HasLocation reports whether the comment carries explicit file/line
// metadata from the review system.
func (c *RawComment) HasLocation() bool {
	return c.Path != "" && c.Line > 0
}

// DiffLine kinds.
const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

// DiffLine is a single line of a hunk. OldLine is zero for added lines,
// NewLine is zero for removed lines.
type DiffLine struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// Hunk is one contiguous changed region of a file. Non-removed lines are
// contiguous in new-file numbering starting at NewStart.
type Hunk struct {
	Header   string     `json:"header"`
	OldStart int        `json:"old_start"`
	OldCount int        `json:"old_count"`
	NewStart int        `json:"new_start"`
	NewCount int        `json:"new_count"`
	Lines    []DiffLine `json:"lines"`
}

// DiffFile is one file of a parsed unified diff.
type DiffFile struct {
	Path    string `json:"path"`
	OldPath string `json:"old_path,omitempty"`
	Hunks   []Hunk `json:"hunks"`
}

// Confidence of a comment-to-code resolution.
type Confidence string

const (
	ConfidenceExplicit   Confidence = "explicit"
	ConfidenceInferred   Confidence = "inferred"
	ConfidenceUnresolved Confidence = "unresolved"
)

// ContextLine is one line of a comment's surrounding code window.
type ContextLine struct {
	LineNumber int    `json:"line_number"`
	Content    string `json:"content"`
	IsTarget   bool   `json:"is_target"`
}

// CodeContext is the source window around a resolved comment.
type CodeContext struct {
	File       string        `json:"file"`
	TargetLine int           `json:"target_line"`
	HunkInfo   string        `json:"hunk_info"`
	Lines      []ContextLine `json:"lines"`
}

// LocatedComment is a RawComment with a resolved diff location.
type LocatedComment struct {
	RawComment
	File       string       `json:"file,omitempty"`
	TargetLine int          `json:"target_line,omitempty"`
	Confidence Confidence   `json:"confidence"`
	Context    *CodeContext `json:"code_context,omitempty"`
}

// Feedback categories, in classification priority order.
type Category string

const (
	CategoryIssue      Category = "Issue"
	CategorySuggestion Category = "Suggestion"
	CategoryNit        Category = "Nit"
	CategoryOther      Category = "Other"
)

// ClassifiedComment is a LocatedComment with its priority bucket.
type ClassifiedComment struct {
	LocatedComment
	Category Category `json:"category"`
}

// FeedbackEntry is one comment in the final report, in the wire shape
// consumed by tool callers.
type FeedbackEntry struct {
	Comment     string       `json:"comment"`
	Author      string       `json:"author"`
	Type        string       `json:"type"`
	CodeContext *CodeContext `json:"code_context"`
	PrimaryFile *string      `json:"primary_file"`
	PrimaryLine *int         `json:"primary_line"`
	Confidence  Confidence   `json:"confidence"`
	Category    Category     `json:"category"`
}

// FeedbackReport is the aggregated result of the correlation pipeline.
// ReviewFeedback preserves the order of the fetched comment stream.
type FeedbackReport struct {
	Revision            *Revision        `json:"revision"`
	ReviewFeedback      []FeedbackEntry  `json:"review_feedback"`
	CategoryCounts      map[Category]int `json:"category_counts"`
	ActionItems         []string         `json:"action_items"`
	Summary             string           `json:"summary"`
	TotalComments       int              `json:"total_comments"`
	CommentsWithContext int              `json:"comments_with_context"`
}

// UnattributedBucket is the grouping key for comments that could not be
// mapped to any file in the diff.
const UnattributedBucket = "unattributed"
