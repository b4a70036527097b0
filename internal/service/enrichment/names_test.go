package enrichment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitOwnerName(t *testing.T) {
	tests := []struct {
		owner string
		last  string
		first string
	}{
		{"DUPONT Jean", "DUPONT", "Jean"},
		{"M DUPONT Jean", "DUPONT", "Jean"},
		{"MME MARTIN Sophie", "MARTIN", "Sophie"},
		{"MLLE BERNARD Claire", "BERNARD", "Claire"},
		{"M. DUPONT Jean", "DUPONT", "Jean"},
		{"DE LA TOUR Philippe", "DE LA TOUR", "Philippe"},
		{"DUPONT JEAN", "DUPONT", "JEAN"},
		{"DUPONT Jean Marie", "DUPONT", "Jean Marie"},
		{"Dupont Jean", "Dupont", "Jean"},
		{"DUPONT", "DUPONT", ""},
		{"M DUPONT", "DUPONT", ""},
		{"  DUPONT   Jean  ", "DUPONT", "Jean"},
		{"", "", ""},
		{"M", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.owner, func(t *testing.T) {
			last, first := SplitOwnerName(tt.owner)
			assert.Equal(t, tt.last, last)
			assert.Equal(t, tt.first, first)
		})
	}
}
