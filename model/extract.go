package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
)

// ============================================================================
// QUERY EXTRACTION
// ============================================================================

// The agent is asked for {"query": "..."} but its output format is not
// contractually guaranteed: answers arrive code-fenced, single-quoted,
// Python-flavored, or buried in prose. Extraction is an ordered chain of
// pure strategies; the first one that yields a JSON object wins.

// Fenced code blocks, JSON-tagged blocks take priority over untagged ones.
var codeBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```"),
	regexp.MustCompile("```\\s*([\\s\\S]*?)\\s*```"),
}

// Bare {"query": ...} object shapes across quote/null conventions.
var queryObjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)(\{['"]query['"]:\s*(?:null|None|['"].*?['"]).*?\})`),
	regexp.MustCompile(`(\{"query":\s*(?:null|"[^"]*")\})`),
	regexp.MustCompile(`(\{'query':\s*(?:null|None|'[^']*')\})`),
}

type extractStrategy func(string) map[string]any

// ExtractQueryJSON pulls a structured {"query": ...} object out of
// free-form agent text. Returns nil when every strategy fails; callers
// must treat that as "no extraction", which is distinct from an extracted
// object carrying a null query.
func ExtractQueryJSON(response string) map[string]any {
	strategies := []extractStrategy{
		extractFromCodeBlock,
		extractFromQueryPattern,
		extractWholeResponse,
	}

	for _, strategy := range strategies {
		if obj := strategy(response); obj != nil {
			return obj
		}
	}
	return nil
}

func parseJSONObject(s string) map[string]any {
	var obj map[string]any
	if err := sonic.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// repairJSON converts Python-flavored output to strict JSON: single quotes
// become double quotes and the None sentinel becomes null.
func repairJSON(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "'", `"`), "None", "null")
}

func extractFromCodeBlock(response string) map[string]any {
	for _, pattern := range codeBlockPatterns {
		m := pattern.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		content := strings.TrimSpace(m[1])
		if obj := parseJSONObject(content); obj != nil {
			return obj
		}
		if obj := parseJSONObject(repairJSON(content)); obj != nil {
			return obj
		}
	}
	return nil
}

func extractFromQueryPattern(response string) map[string]any {
	for _, pattern := range queryObjectPatterns {
		m := pattern.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		if obj := parseJSONObject(repairJSON(m[1])); obj != nil {
			return obj
		}
	}
	return nil
}

func extractWholeResponse(response string) map[string]any {
	return parseJSONObject(response)
}

// QueryString returns the extracted query as a string and whether a usable
// (present, non-null, non-empty) query value exists. The literal string
// "null" counts as usable here; no-answer scoring handles it separately.
func QueryString(obj map[string]any) (string, bool) {
	if obj == nil {
		return "", false
	}
	v, ok := obj["query"]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	default:
		return fmt.Sprint(v), true
	}
}
