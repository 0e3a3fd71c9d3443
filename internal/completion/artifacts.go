package completion

import (
	"path"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// MinDocumentLength is the shortest cleaned output accepted as a document.
const MinDocumentLength = 200

var (
	boxLineRe      = regexp.MustCompile(`^[\s━═─]+$`)
	docHeadingRe   = regexp.MustCompile(`^#+\s+\w`)
	summaryDoneRe  = regexp.MustCompile(`(?i)summary of what was done`)
	summaryPlaceRe = regexp.MustCompile(`(?i)summary of what'?s in place`)
	agentExitedRe  = regexp.MustCompile(`(?i)done\.\s*agent exited`)

	// Lines the launcher wrapper and agent chrome print around a document.
	chromeLineRes = []*regexp.Regexp{
		boxLineRe,
		regexp.MustCompile(`(?i)implement all\s*[–-]\s*terminal slot`),
		regexp.MustCompile(`(?i)^project:\s*/`),
		regexp.MustCompile(`(?i)cd into project path`),
		regexp.MustCompile(`^→\s+/`),
		regexp.MustCompile(`(?i)^cd\s+/`),
		regexp.MustCompile(`(?i)running:\s*agent\s+-p`),
		regexp.MustCompile("^\\*\\*`\\.cursor/.*`\\*\\*\\s*[—–-]"),
		regexp.MustCompile(`(?i)^\.cursor/.*\s+[—–-]\s`),
	}
)

func isChromeLine(line string) bool {
	for _, re := range chromeLineRes {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func isDocumentStart(line string) bool {
	return docHeadingRe.MatchString(line) && len(line) > 3
}

// StripTerminalArtifacts removes ANSI sequences, wrapper chrome, and agent
// session summaries from captured output. Consecutive duplicate lines are
// collapsed and blank edges trimmed.
func StripTerminalArtifacts(raw string) string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))

	skipDone := false
	skipPlace := false
	last := ""
	for _, line := range lines {
		line = ansi.Strip(strings.TrimRight(line, "\r"))
		trimmed := strings.TrimSpace(line)

		switch {
		case summaryDoneRe.MatchString(trimmed):
			skipDone, skipPlace = true, false
			continue
		case summaryPlaceRe.MatchString(trimmed):
			skipDone, skipPlace = false, true
			continue
		}
		if skipDone {
			if agentExitedRe.MatchString(trimmed) || boxLineRe.MatchString(trimmed) {
				skipDone = false
			}
			continue
		}
		if skipPlace {
			if !isDocumentStart(trimmed) {
				continue
			}
			skipPlace = false
		}

		if isChromeLine(trimmed) {
			continue
		}
		if trimmed == last {
			continue
		}
		last = trimmed
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Placeholder is written instead of a document when the agent produced
// nothing usable.
func Placeholder(outputPath string) string {
	name := path.Base(strings.ReplaceAll(outputPath, "\\", "/"))
	if ext := path.Ext(name); strings.EqualFold(ext, ".md") {
		name = name[:len(name)-len(ext)]
	}
	return "# " + name + "\n\n*Output was too short or only terminal output. Run Analyze again.*\n"
}

// DocumentContent cleans stdout and falls back to Placeholder when fewer
// than minLength characters survive. minLength <= 0 uses
// MinDocumentLength.
func DocumentContent(outputPath, stdout string, minLength int) string {
	if minLength <= 0 {
		minLength = MinDocumentLength
	}
	cleaned := StripTerminalArtifacts(stdout)
	if len([]rune(cleaned)) < minLength {
		return Placeholder(outputPath)
	}
	return cleaned
}
