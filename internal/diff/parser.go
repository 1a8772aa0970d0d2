// Package diff parses unified diff text into an addressable structure:
// file, hunk, line, with every line carrying its old/new line numbers.
package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
	"github.com/qiniu/phabmcp/pkg/models"
)

// MalformedDiffError means the diff text does not parse: a hunk header does
// not match the @@ -a,b +c,d @@ pattern, or no file headers are present.
// It aborts the whole tool call; no partial report is produced from a bad
// diff.
type MalformedDiffError struct {
	Reason string
	Err    error
}

func (e *MalformedDiffError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed diff: %s: %v", e.Reason, e.Err)
	}
	return "malformed diff: " + e.Reason
}

func (e *MalformedDiffError) Unwrap() error {
	return e.Err
}

// Parse converts raw unified diff text into DiffFiles. Hunks keep their
// header text; lines are numbered by walking the hunk body: non-removed
// lines advance the new-file counter, non-added lines advance the old-file
// counter. Empty hunks are legal and contribute no lines.
func Parse(raw string) ([]models.DiffFile, error) {
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, &MalformedDiffError{Reason: "unparsable hunk or file header", Err: err}
	}
	if len(files) == 0 {
		return nil, &MalformedDiffError{Reason: "no file headers found"}
	}

	result := make([]models.DiffFile, 0, len(files))
	for _, f := range files {
		file := models.DiffFile{
			Path:    f.NewName,
			OldPath: f.OldName,
		}
		if file.Path == "" {
			// Deleted files have no post-change name.
			file.Path = f.OldName
		}

		for _, frag := range f.TextFragments {
			file.Hunks = append(file.Hunks, convertFragment(frag))
		}
		result = append(result, file)
	}
	return result, nil
}

func convertFragment(frag *gitdiff.TextFragment) models.Hunk {
	hunk := models.Hunk{
		Header:   strings.TrimSpace(frag.Header()),
		OldStart: int(frag.OldPosition),
		OldCount: int(frag.OldLines),
		NewStart: int(frag.NewPosition),
		NewCount: int(frag.NewLines),
	}

	oldNum := int(frag.OldPosition)
	newNum := int(frag.NewPosition)

	for _, line := range frag.Lines {
		content := strings.TrimSuffix(line.Line, "\n")
		switch line.Op {
		case gitdiff.OpContext:
			hunk.Lines = append(hunk.Lines, models.DiffLine{
				Kind:    models.LineContext,
				Content: content,
				OldLine: oldNum,
				NewLine: newNum,
			})
			oldNum++
			newNum++
		case gitdiff.OpAdd:
			hunk.Lines = append(hunk.Lines, models.DiffLine{
				Kind:    models.LineAdded,
				Content: content,
				NewLine: newNum,
			})
			newNum++
		case gitdiff.OpDelete:
			hunk.Lines = append(hunk.Lines, models.DiffLine{
				Kind:    models.LineRemoved,
				Content: content,
				OldLine: oldNum,
			})
			oldNum++
		}
	}
	return hunk
}

// PostChangeLines returns the lines of a file that exist after the change
// (context and added lines), in new-file order. This is the sequence
// context windows are cut from.
func PostChangeLines(file models.DiffFile) []models.DiffLine {
	var lines []models.DiffLine
	for _, hunk := range file.Hunks {
		for _, line := range hunk.Lines {
			if line.Kind != models.LineRemoved {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

// HunkContaining returns the hunk whose new-file range covers newLine, or
// nil.
func HunkContaining(file models.DiffFile, newLine int) *models.Hunk {
	for i := range file.Hunks {
		hunk := &file.Hunks[i]
		if newLine >= hunk.NewStart && newLine < hunk.NewStart+hunk.NewCount {
			return hunk
		}
	}
	return nil
}
