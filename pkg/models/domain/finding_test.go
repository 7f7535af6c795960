package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindingStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name  string
		from  FindingStatus
		to    FindingStatus
		legal bool
	}{
		{"fail to fixed", StatusFail, StatusFixed, true},
		{"fail to manual", StatusFail, StatusManual, true},
		{"fixed to fail via rollback", StatusFixed, StatusFail, true},
		{"pass is terminal", StatusPass, StatusFixed, false},
		{"pass never fails in place", StatusPass, StatusFail, false},
		{"error is terminal", StatusError, StatusFail, false},
		{"manual is terminal", StatusManual, StatusFixed, false},
		{"fixed cannot re-fix", StatusFixed, StatusFixed, false},
		{"fail cannot pass in place", StatusFail, StatusPass, false},
		{"fixed cannot go manual", StatusFixed, StatusManual, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.legal, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestFindingStatus_Valid(t *testing.T) {
	for _, s := range []FindingStatus{StatusPass, StatusFail, StatusError, StatusFixed, StatusManual} {
		assert.True(t, s.Valid())
	}
	assert.False(t, FindingStatus("OPEN").Valid())
	assert.False(t, FindingStatus("").Valid())
}
