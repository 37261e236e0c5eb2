package sjiscsv

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	records := [][]string{
		{"コマンド", "セレクタ"},
		{"input", "id", "user", "山田"},
		{"click"},
	}

	require.NoError(t, WriteFile(path, records))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteFile_BytesAreShiftJIS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteFile(path, [][]string{{"ログ", "a"}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x83\x8d\x83O,a\r\n"), raw)
}

func TestWriteFile_UnencodableLeavesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	err := WriteFile(path, [][]string{{"ok"}, {"emoji 🙂"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")

	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestRead_VariableFieldCounts(t *testing.T) {
	got, err := Read(bytes.NewBufferString("a,b,c\r\nd\r\ne,f\r\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d"}, {"e", "f"}}, got)
}

func TestWriter_LenientReplacesUnsupported(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)

	require.NoError(t, w.Write([]string{"x🙂y"}))
	assert.NotEmpty(t, buf.Bytes())

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0][0], "🙂")
	assert.Contains(t, got[0][0], "x")
}
