package jira

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cragr/supportdesk/internal/models"
)

// TrailerMarker separates user-written text from the system trailer. Code
// that strips the trailer for display depends on it, so it must not change.
const TrailerMarker = "----"

// TrailerHeading is the first line of the trailer.
const TrailerHeading = "*Submitted via Support Portal*"

// Trailer field labels.
const (
	LabelRequester      = "Requester"
	LabelRequesterEmail = "Requester Email"
	LabelOriginServerID = "Discord Server ID"
	LabelOriginUsername = "Discord Username"
	LabelOriginUserID   = "Discord User ID"
)

// MockKeyPrefix starts every key produced without credentials.
const MockKeyPrefix = "MOCK-"

// BuildDescription appends the origin trailer to the user's description.
func BuildDescription(input models.CreateRequestInput) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(input.Description, " \n"))
	b.WriteString("\n\n")
	b.WriteString(TrailerMarker)
	b.WriteString("\n")
	b.WriteString(TrailerHeading)
	b.WriteString("\n")

	writeField(&b, LabelRequester, input.RequesterName)
	writeField(&b, LabelRequesterEmail, input.RequesterEmail)
	writeField(&b, LabelOriginServerID, input.OriginServerID)
	writeField(&b, LabelOriginUsername, input.OriginUsername)
	writeField(&b, LabelOriginUserID, input.OriginUserID)

	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString(fmt.Sprintf("%s: %s\n", label, value))
}

// SplitDescription separates the user-authored text from the trailer. The
// trailer is found from the last marker that is followed by the heading;
// text without one is returned whole.
func SplitDescription(text string) (userText, trailer string) {
	search := text
	for {
		idx := strings.LastIndex(search, TrailerMarker)
		if idx == -1 {
			return strings.TrimSpace(text), ""
		}
		rest := strings.TrimLeft(search[idx+len(TrailerMarker):], " \n")
		if strings.HasPrefix(rest, TrailerHeading) {
			return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx:])
		}
		search = search[:idx]
	}
}

// TrailerField returns the value of label in a trailer, or "".
func TrailerField(trailer, label string) string {
	prefix := label + ":"
	for _, line := range strings.Split(trailer, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

// MockKey returns the key used when no credentials are configured.
func MockKey(now time.Time) string {
	return MockKeyPrefix + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
}
