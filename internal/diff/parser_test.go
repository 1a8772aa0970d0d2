package diff

import (
	"testing"

	"github.com/qiniu/phabmcp/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/foo.py b/foo.py
index 1111111..2222222 100644
--- a/foo.py
+++ b/foo.py
@@ -1,3 +1,4 @@
 def main():
     x = compute()
+    return broken_code
     return x
@@ -40,2 +41,2 @@
 def helper():
-    old_helper_body()
+    new_helper_body()
diff --git a/bar.go b/bar.go
index 3333333..4444444 100644
--- a/bar.go
+++ b/bar.go
@@ -10,2 +10,3 @@
 func Bar() {
+	validateInput()
 }
`

func TestParseFilesAndHunks(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)
	require.Len(t, files, 2)

	foo := files[0]
	assert.Equal(t, "foo.py", foo.Path)
	require.Len(t, foo.Hunks, 2)

	first := foo.Hunks[0]
	assert.Equal(t, 1, first.OldStart)
	assert.Equal(t, 3, first.OldCount)
	assert.Equal(t, 1, first.NewStart)
	assert.Equal(t, 4, first.NewCount)
	assert.Contains(t, first.Header, "@@ -1,3 +1,4 @@")

	assert.Equal(t, "bar.go", files[1].Path)
}

func TestParseLineNumbering(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	lines := files[0].Hunks[0].Lines
	require.Len(t, lines, 4)

	// Context lines carry both numbers.
	assert.Equal(t, models.LineContext, lines[0].Kind)
	assert.Equal(t, 1, lines[0].OldLine)
	assert.Equal(t, 1, lines[0].NewLine)
	assert.Equal(t, 2, lines[1].OldLine)
	assert.Equal(t, 2, lines[1].NewLine)

	// Added line has only a new number.
	assert.Equal(t, models.LineAdded, lines[2].Kind)
	assert.Equal(t, 3, lines[2].NewLine)
	assert.Zero(t, lines[2].OldLine)
	assert.Equal(t, "    return broken_code", lines[2].Content)

	// Context after an insertion keeps old numbering but shifts new.
	assert.Equal(t, models.LineContext, lines[3].Kind)
	assert.Equal(t, 3, lines[3].OldLine)
	assert.Equal(t, 4, lines[3].NewLine)

	// Removed line has only an old number.
	second := files[0].Hunks[1].Lines
	require.Len(t, second, 3)
	assert.Equal(t, models.LineRemoved, second[1].Kind)
	assert.Equal(t, 41, second[1].OldLine)
	assert.Zero(t, second[1].NewLine)
}

// The declared new-count of every hunk must equal its number of non-removed
// lines.
func TestParseNewCountInvariant(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	for _, file := range files {
		for _, hunk := range file.Hunks {
			nonRemoved := 0
			for _, line := range hunk.Lines {
				if line.Kind != models.LineRemoved {
					nonRemoved++
				}
			}
			assert.Equal(t, hunk.NewCount, nonRemoved,
				"%s %s: non-removed lines vs declared new-count", file.Path, hunk.Header)
		}
	}
}

func TestParseMalformedHunkHeader(t *testing.T) {
	bad := `diff --git a/foo.py b/foo.py
--- a/foo.py
+++ b/foo.py
@@ this is not a hunk header @@
 context
`
	_, err := Parse(bad)
	require.Error(t, err)

	var malformed *MalformedDiffError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseNoFileHeaders(t *testing.T) {
	_, err := Parse("just some prose\nthat is not a diff\n")
	require.Error(t, err)

	var malformed *MalformedDiffError
	assert.ErrorAs(t, err, &malformed)
}

func TestParseEmptyInput(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)

	var malformed *MalformedDiffError
	assert.ErrorAs(t, err, &malformed)
}

func TestPostChangeLines(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)

	lines := PostChangeLines(files[0])
	// 4 non-removed lines in the first hunk + 2 in the second.
	require.Len(t, lines, 6)
	for i := 1; i < len(lines); i++ {
		assert.Greater(t, lines[i].NewLine, lines[i-1].NewLine,
			"post-change lines must be ordered by new-file number")
	}
}

func TestHunkContaining(t *testing.T) {
	files, err := Parse(sampleDiff)
	require.NoError(t, err)
	foo := files[0]

	hunk := HunkContaining(foo, 3)
	require.NotNil(t, hunk)
	assert.Equal(t, 1, hunk.NewStart)

	hunk = HunkContaining(foo, 42)
	require.NotNil(t, hunk)
	assert.Equal(t, 41, hunk.NewStart)

	assert.Nil(t, HunkContaining(foo, 1000))
}
