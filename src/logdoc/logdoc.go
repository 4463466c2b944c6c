// Package logdoc builds the canonical LogDocument representation the
// retrieval layer searches against, from an input Launch/TestItem/Log (or
// a bare SuggestAnalyzerConfig for suggest requests) and a raw log
// message. The text transforms come from textnorm; this package decides
// which field gets which transform and adds its own description-vs-
// stacktrace split and number extraction.
package logdoc

import (
	"strings"
	"time"

	"github.com/reportflow/analyzer-core/src/contracts"
	"github.com/reportflow/analyzer-core/src/textnorm"
)

// PrepareLogDocument builds the LogDocument for one log belonging to a
// test item within a launch. numberOfLogLines == -1 means the "message"
// family carries the whole sanitized text; any other value truncates the
// "message" family to the first N lines. The "detected" family does not
// depend on numberOfLogLines: it always carries the description lines
// (those before the first stack-frame line), never the stack-frame lines,
// which go to "stacktrace".
func PrepareLogDocument(launch contracts.Launch, item contracts.TestItem, log contracts.Log) contracts.LogDocument {
	doc := buildFields(log.Message, launch.AnalyzerConfig.NumberOfLogLines)
	doc.LaunchID = launch.LaunchID
	doc.LaunchName = launch.LaunchName
	doc.TestItem = item.TestItemID
	doc.UniqueID = item.UniqueID
	doc.IsAutoAnalyzed = item.IsAutoAnalyzed
	doc.IssueType = item.IssueType
	doc.LogLevel = log.LogLevel
	doc.StartTime = time.Now().UTC().Format(time.RFC3339)
	return doc
}

// PrepareSuggestLogDocument builds the LogDocument for a suggest request's
// query log, which has no surrounding launch beyond the ids carried on
// the SuggestAnalyzerConfig itself.
func PrepareSuggestLogDocument(info contracts.SuggestAnalyzerConfig, log contracts.Log) contracts.LogDocument {
	doc := buildFields(log.Message, info.AnalyzerConfig.NumberOfLogLines)
	doc.LaunchID = info.LaunchID
	doc.LaunchName = info.LaunchName
	doc.TestItem = info.TestItemID
	doc.LogLevel = log.LogLevel
	doc.StartTime = time.Now().UTC().Format(time.RFC3339)
	return doc
}

// buildFields fills every textual field of a LogDocument derived purely
// from the raw message and the caller's numberOfLogLines setting.
//
// Line-oriented splits (first-N-lines, description-vs-stacktrace) run on
// rawMessage before sanitizing, since SanitizeText collapses newlines
// along with the rest of the whitespace it normalizes.
func buildFields(rawMessage string, numberOfLogLines int) contracts.LogDocument {
	descRaw, traceRaw := splitDescriptionAndStacktrace(rawMessage)
	detectedMessage := textnorm.SanitizeText(descRaw)
	stacktrace := textnorm.SanitizeText(traceRaw)

	message := textnorm.SanitizeText(textnorm.FirstLines(rawMessage, numberOfLogLines))

	exceptions := textnorm.ExtractExceptions(rawMessage)
	exceptionSuffix := strings.Join(exceptions, " ")

	messageExtended := appendSuffix(message, exceptionSuffix)
	detectedMessageExtended := appendSuffix(detectedMessage, exceptionSuffix)
	stacktraceExtended := appendSuffix(stacktrace, exceptionSuffix)

	return contracts.LogDocument{
		Message:                                 message,
		MessageExtended:                         messageExtended,
		MessageWithoutParamsExtended:            textnorm.StripParams(messageExtended),
		MessageWithoutParamsAndBrackets:         textnorm.StripBrackets(textnorm.StripParams(message)),
		DetectedMessage:                         detectedMessage,
		DetectedMessageExtended:                 detectedMessageExtended,
		DetectedMessageWithoutParamsExtended:    textnorm.StripParams(detectedMessageExtended),
		DetectedMessageWithoutParamsAndBrackets: textnorm.StripBrackets(textnorm.StripParams(detectedMessage)),
		DetectedMessageWithNumbers:               detectedMessage,
		Stacktrace:                               stacktrace,
		StacktraceExtended:                       stacktraceExtended,
		MergedSmallLogs:                          "",
		OnlyNumbers:                              extractOnlyNumbers(rawMessage),
		MessageParams:                            strings.Join(textnorm.ExtractMessageParams(rawMessage), " "),
		Urls:                                     strings.Join(textnorm.ExtractURLs(rawMessage), " "),
		Paths:                                    strings.Join(textnorm.ExtractPaths(rawMessage), " "),
		FoundExceptionsExtended:                  exceptionSuffix,
		PotentialStatusCodes:                     strings.Join(textnorm.ExtractStatusCodes(rawMessage), " "),
		IsMerged:                                 false,
		OriginalMessage:                          rawMessage,
	}
}

// splitDescriptionAndStacktrace separates a raw, pre-sanitize message into
// its leading description lines (the exception headline and any
// immediately following unindented context) and its stack-trace lines
// (indented frames, "at ...", "Caused by:", or quoted-file frames). Runs
// before sanitizing so line breaks are still intact.
func splitDescriptionAndStacktrace(raw string) (description, stacktrace string) {
	if raw == "" {
		return "", ""
	}
	lines := strings.Split(raw, "\n")
	var descLines, traceLines []string
	inTrace := false
	for _, line := range lines {
		if looksLikeStackFrame(line) {
			inTrace = true
		}
		if inTrace {
			traceLines = append(traceLines, line)
		} else {
			descLines = append(descLines, line)
		}
	}
	return strings.Join(descLines, "\n"), strings.Join(traceLines, "\n")
}

func looksLikeStackFrame(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	lower := strings.ToLower(trimmed)
	if trimmed == line && !strings.HasPrefix(lower, "at ") && !strings.HasPrefix(lower, "caused by") {
		return false
	}
	switch {
	case strings.HasPrefix(lower, "at "):
		return true
	case strings.HasPrefix(lower, "caused by"):
		return true
	case strings.HasPrefix(lower, `file "`):
		return true
	case trimmed != line:
		return true
	}
	return false
}

func appendSuffix(base, suffix string) string {
	if suffix == "" {
		return base
	}
	if base == "" {
		return suffix
	}
	return base + " " + suffix
}

func extractOnlyNumbers(text string) string {
	var numbers []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			numbers = append(numbers, current.String())
			current.Reset()
		}
	}
	for _, r := range text {
		if r >= '0' && r <= '9' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return strings.Join(numbers, " ")
}
