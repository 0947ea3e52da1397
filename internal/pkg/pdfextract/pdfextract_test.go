package pdfextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.True(t, IsPDF([]byte("\n %PDF-1.4")))
	assert.False(t, IsPDF([]byte("Chapter 1. Cells")))
	assert.False(t, IsPDF(nil))
}

func TestExtractTextEmptyInput(t *testing.T) {
	text, err := ExtractText(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestPagesRejectsNonPDF(t *testing.T) {
	_, err := Pages([]byte("plain text"))
	assert.ErrorIs(t, err, ErrNotPDF)

	_, err = ExtractText(strings.NewReader("plain text"))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestPagesRejectsTruncatedPDF(t *testing.T) {
	_, err := Pages([]byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n"))
	assert.Error(t, err)
}

func TestDocumentText(t *testing.T) {
	text, err := DocumentText([]byte("Chapter 1. Cells\n\nCells divide."))
	require.NoError(t, err)
	assert.Equal(t, "Chapter 1. Cells\n\nCells divide.", text)

	_, err = DocumentText([]byte{0xff, 0xfe, 0x00, 0x41})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = DocumentText([]byte("%PDF-1.4\ngarbage"))
	assert.Error(t, err)
}
