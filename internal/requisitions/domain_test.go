package requisitions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func linesOf(statuses ...LineStatus) []Line {
	lines := make([]Line, len(statuses))
	for i, s := range statuses {
		lines[i] = Line{LineNo: i + 1, Description: "part", QtyRequested: 1, Status: s}
	}
	return lines
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		name     string
		lines    []Line
		want     Status
		resolved bool
	}{
		{"all approved", linesOf(LineApproved, LineApproved), StatusApproved, true},
		{"all rejected", linesOf(LineRejected, LineRejected), StatusRejected, true},
		{"mixed approved and rejected", linesOf(LineApproved, LineRejected), StatusPartiallyApproved, true},
		{"any backordered wins", linesOf(LineApproved, LineBackordered, LineRejected), StatusBackordered, true},
		{"backordered even while pending", linesOf(LinePending, LineBackordered), StatusBackordered, true},
		{"pending blocks aggregate", linesOf(LineApproved, LinePending), "", false},
		{"no lines", nil, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DeriveStatus(tc.lines)
			require.Equal(t, tc.resolved, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidateLines(t *testing.T) {
	require.Error(t, validateLines(nil))
	require.Error(t, validateLines([]Line{{Description: "", QtyRequested: 1}}))
	require.Error(t, validateLines([]Line{{Description: "oil filter", QtyRequested: 0}}))
	require.NoError(t, validateLines([]Line{{Description: "oil filter", QtyRequested: 2}}))
	require.NoError(t, validateLines([]Line{{PartName: "oil filter", QtyRequested: 1}}))
}

func TestResolved(t *testing.T) {
	require.False(t, resolved(StatusPendingForeman))
	require.False(t, resolved(StatusPendingStore))
	for _, s := range []Status{StatusApproved, StatusPartiallyApproved, StatusBackordered, StatusRejected, StatusFulfilled} {
		require.True(t, resolved(s), string(s))
	}
}
