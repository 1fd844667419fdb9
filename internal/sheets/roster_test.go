package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(0))
	assert.Equal(t, "E", columnLetter(4))
	assert.Equal(t, "Z", columnLetter(25))
	assert.Equal(t, "AA", columnLetter(26))
	assert.Equal(t, "AB", columnLetter(27))
}

func TestCell(t *testing.T) {
	row := []string{"", "Tashkent", " Aziz Karimov ", "+99890", "102"}
	assert.Equal(t, "Tashkent", cell(row, 1))
	assert.Equal(t, "Aziz Karimov", cell(row, 2))
	assert.Equal(t, "", cell(row, 9), "out of range reads as empty")
	assert.Equal(t, "", cell(row, -1))
}

func TestQuoteTitle(t *testing.T) {
	assert.Equal(t, "'Staff List'", quoteTitle("Staff List"))
}
