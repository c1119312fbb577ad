package radar

import (
	"fmt"
	"strconv"
	"strings"
)

// Display helpers for operator-facing notification text. The care operators
// are French-speaking, matching the mobile app copy.

// FormatActiveRegions formats active regions for display
func FormatActiveRegions(activeRegions []int) string {
	if len(activeRegions) == 0 {
		return "Aucune zone active"
	}
	parts := make([]string, len(activeRegions))
	for i, r := range activeRegions {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, ", ")
}

// FormatTargetCount formats the tracked-target count for display
func FormatTargetCount(targetCount int) string {
	if targetCount == 0 {
		return "Aucune cible détectée"
	}
	if targetCount > 1 {
		return fmt.Sprintf("%d cibles", targetCount)
	}
	return fmt.Sprintf("%d cible", targetCount)
}
