package review

import (
	"strings"

	"github.com/qiniu/phabmcp/internal/diff"
	"github.com/qiniu/phabmcp/pkg/models"
)

// Correlator maps review comments to concrete file/line locations in a
// parsed diff and attaches a window of surrounding post-change source
// lines.
//
// Resolution order per comment: explicit location metadata from the review
// system, then keyword inference against diff content, then unresolved.
// Output order always matches input order.
type Correlator struct {
	// ContextLines is the number of lines collected on each side of the
	// target.
	ContextLines int
}

func NewCorrelator(contextLines int) *Correlator {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Correlator{ContextLines: contextLines}
}

// Correlate resolves every comment against the diff. It never fails: a
// comment that cannot be placed degrades to unresolved with no context.
func (c *Correlator) Correlate(comments []models.RawComment, files []models.DiffFile) []models.LocatedComment {
	located := make([]models.LocatedComment, 0, len(comments))
	for _, comment := range comments {
		located = append(located, c.resolve(comment, files))
	}
	return located
}

func (c *Correlator) resolve(comment models.RawComment, files []models.DiffFile) models.LocatedComment {
	result := models.LocatedComment{
		RawComment: comment,
		Confidence: models.ConfidenceUnresolved,
	}

	// Explicit location from the review system wins. It only fails when
	// the named file is not part of the diff.
	if comment.HasLocation() {
		file := findFile(files, comment.Path)
		if file == nil {
			return result
		}
		result.File = file.Path
		result.TargetLine = comment.Line
		result.Confidence = models.ConfidenceExplicit
		result.Context = c.buildContext(*file, comment.Line)
		return result
	}

	// Fall back to keyword inference.
	keywords := ExtractKeywords(comment.Text)
	if len(keywords) == 0 {
		return result
	}

	file, line := bestMatch(files, keywords)
	if file == nil {
		return result
	}

	result.File = file.Path
	result.TargetLine = line
	result.Confidence = models.ConfidenceInferred
	result.Context = c.buildContext(*file, line)
	return result
}

// bestMatch scans the post-change lines of every file, scoring each line by
// the number of distinct keywords it contains. The file with the most total
// hits wins; within it the line with the most hits wins, earliest new-file
// line number breaking ties. Returns nil when nothing matches.
func bestMatch(files []models.DiffFile, keywords []string) (*models.DiffFile, int) {
	var bestFile *models.DiffFile
	bestFileHits := 0
	bestLine := 0

	for i := range files {
		file := &files[i]
		fileHits := 0
		lineHits := 0
		line := 0

		for _, dl := range diff.PostChangeLines(*file) {
			hits := countHits(dl.Content, keywords)
			if hits == 0 {
				continue
			}
			fileHits += hits
			if hits > lineHits {
				lineHits = hits
				line = dl.NewLine
			}
		}

		if fileHits > bestFileHits {
			bestFile = file
			bestFileHits = fileHits
			bestLine = line
		}
	}

	return bestFile, bestLine
}

func countHits(content string, keywords []string) int {
	lower := strings.ToLower(content)
	hits := 0
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			hits++
		}
	}
	return hits
}

// buildContext cuts a window of up to ContextLines lines on each side of
// the target out of the file's flattened post-change sequence. A file with
// fewer lines than requested yields a shorter window, never an error.
func (c *Correlator) buildContext(file models.DiffFile, targetLine int) *models.CodeContext {
	flat := diff.PostChangeLines(file)
	if len(flat) == 0 {
		return nil
	}

	// Position of the target, or of the nearest following line when the
	// target itself is not part of the changed regions.
	pos := len(flat) - 1
	for i, line := range flat {
		if line.NewLine >= targetLine {
			pos = i
			break
		}
	}

	start := pos - c.ContextLines
	if start < 0 {
		start = 0
	}
	end := pos + c.ContextLines + 1
	if end > len(flat) {
		end = len(flat)
	}

	context := &models.CodeContext{
		File:       file.Path,
		TargetLine: targetLine,
	}
	for _, line := range flat[start:end] {
		context.Lines = append(context.Lines, models.ContextLine{
			LineNumber: line.NewLine,
			Content:    line.Content,
			IsTarget:   line.NewLine == targetLine,
		})
	}

	if hunk := diff.HunkContaining(file, targetLine); hunk != nil {
		context.HunkInfo = hunk.Header
	} else if hunk := diff.HunkContaining(file, flat[pos].NewLine); hunk != nil {
		context.HunkInfo = hunk.Header
	}

	return context
}

func findFile(files []models.DiffFile, path string) *models.DiffFile {
	for i := range files {
		if files[i].Path == path || files[i].OldPath == path {
			return &files[i]
		}
	}
	return nil
}
