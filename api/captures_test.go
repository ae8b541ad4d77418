package api

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func collapse(t *testing.T, input string) string {
	out := new(bytes.Buffer)
	_, err := copyAndMarkRepeatedLines(out, strings.NewReader(input))
	assert.NoError(t, err)
	return out.String()
}

func TestCopyAndMarkRepeatedLinesPassthrough(t *testing.T) {
	assert.Equal(t, "a\na\na\nb\n", collapse(t, "a\na\na\nb\n"))
}

func TestCopyAndMarkRepeatedLinesCollapsesRun(t *testing.T) {
	input := strings.Repeat("x\n", 25) + "y\n"
	assert.Equal(t, "x\n{Last line repeated 25 times}\ny\n", collapse(t, input))
}

func TestCopyAndMarkRepeatedLinesTrailingRun(t *testing.T) {
	input := "y\n" + strings.Repeat("x\n", 25)
	assert.Equal(t, "y\n{Last line repeated 25 times}\n", collapse(t, input))
}

func TestCopyAndMarkRepeatedLinesAtThreshold(t *testing.T) {
	// exactly WriteRepeatedThreshold repeats are written out as-is
	input := strings.Repeat("x\n", WriteRepeatedThreshold) + "y\n"
	assert.Equal(t, input, collapse(t, input))
}

func TestCopyAndMarkRepeatedLinesEmptyInput(t *testing.T) {
	// an empty capture collapses to a single newline, which the
	// handlers turn back into an empty string
	assert.Equal(t, "\n", collapse(t, ""))
}
