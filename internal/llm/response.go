package llm

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/sentinelreview/sentinel/pkg/models"
)

// ParseResponse extracts validated issues from a raw model reply. Any
// failure along the way yields zero issues, never an error: a chunk the
// model fumbled is just missing coverage.
func ParseResponse(raw string, chunk *models.Chunk, sourceTool string) []models.Issue {
	payload := extractJSON(raw)
	if payload == "" {
		return nil
	}

	var parsed struct {
		Issues []models.Issue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(payload)
		if repairErr != nil {
			log.Debug().Err(err).Int("chunk", chunk.Index).Msg("llm response is not parseable json")
			return nil
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			log.Debug().Err(err).Int("chunk", chunk.Index).Msg("llm response unusable after repair")
			return nil
		}
	}

	var issues []models.Issue
	for _, iss := range parsed.Issues {
		iss.ID = uuid.NewString()
		iss.SourceTool = sourceTool
		iss.IsLLMGenerated = true

		if !pathInChunk(iss.FilePath, chunk.FilePaths) {
			log.Debug().
				Str("file", iss.FilePath).
				Int("chunk", chunk.Index).
				Msg("dropping llm issue for file outside chunk")
			continue
		}
		if err := iss.Validate(); err != nil {
			log.Debug().Err(err).Str("file", iss.FilePath).Msg("dropping invalid llm issue")
			continue
		}
		issues = append(issues, iss)
	}
	return issues
}

// extractJSON locates the JSON payload in a reply: fenced code block
// first, then the outermost brace pair, then the whole string.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if fenced := extractFenced(raw); fenced != "" {
		return fenced
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func extractFenced(raw string) string {
	open := strings.Index(raw, "```")
	if open < 0 {
		return ""
	}
	rest := raw[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Skip the language tag on the fence line.
		if tag := strings.TrimSpace(rest[:nl]); tag == "" || tag == "json" {
			rest = rest[nl+1:]
		}
	}
	closeIdx := strings.Index(rest, "```")
	if closeIdx < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:closeIdx])
}

// pathInChunk accepts a reported path when it substring-matches a chunk
// path in either direction. Models often echo paths with an extra a/ b/
// prefix or drop a leading directory.
func pathInChunk(reported string, chunkPaths []string) bool {
	if reported == "" {
		return false
	}
	for _, p := range chunkPaths {
		if strings.Contains(reported, p) || strings.Contains(p, reported) {
			return true
		}
	}
	return false
}
