package logging

import "strings"

// FormatSubject builds the phase/campaign/change subject shown in console output.
func FormatSubject(phase, campaignID, changeID string) string {
	phase = strings.TrimSpace(phase)
	campaignID = strings.TrimSpace(campaignID)
	changeID = strings.TrimSpace(changeID)
	parts := make([]string, 0, 3)
	if phase != "" {
		parts = append(parts, strings.ToUpper(phase[:1])+strings.ToLower(phase[1:]))
	}
	if campaignID != "" {
		parts = append(parts, "Campaign "+campaignID)
	}
	if changeID != "" {
		parts = append(parts, "Change #"+changeID)
	}
	return strings.Join(parts, " · ")
}
