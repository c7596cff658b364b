package jira

import (
	"fmt"
	"strings"
)

// jqlEscaper prefixes every JQL metacharacter with a backslash. Replacer
// makes a single pass, so a backslash it inserts is never escaped again;
// the result matches escaping the backslash first and the rest after.
var jqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`'`, `\'`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`+`, `\+`,
	`-`, `\-`,
	`&`, `\&`,
	`|`, `\|`,
	`!`, `\!`,
	`^`, `\^`,
	`~`, `\~`,
	`*`, `\*`,
	`?`, `\?`,
	`:`, `\:`,
)

// EscapeJQL makes s safe to place inside a quoted JQL string.
func EscapeJQL(s string) string {
	return jqlEscaper.Replace(s)
}

// UserTicketsJQL finds a user's tickets by the ids recorded in the
// description trailer, newest first. username is optional.
func UserTicketsJQL(projectKey, userID, username string) string {
	clause := fmt.Sprintf(`description ~ "%s"`, EscapeJQL(userID))
	if username != "" {
		clause += fmt.Sprintf(` OR description ~ "%s"`, EscapeJQL(username))
	}
	return fmt.Sprintf(`project = "%s" AND (%s) ORDER BY created DESC`, EscapeJQL(projectKey), clause)
}
