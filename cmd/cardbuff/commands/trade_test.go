package commands

import (
	"cardbuff/services/catalog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyTargetOverrides(t *testing.T) {
	resolved := catalog.TargetCard{CardID: 42, Rank: "B", Name: "Boost Card", WantersCount: 9}

	got := applyTargetOverrides(resolved, 77, "a", "Other Card")
	require.Equal(t, catalog.TargetCard{CardID: 77, Rank: "A", Name: "Other Card"}, got)

	// both id and rank are needed to override
	require.Equal(t, resolved, applyTargetOverrides(resolved, 77, "", ""))
	require.Equal(t, resolved, applyTargetOverrides(resolved, 0, "A", ""))
}
