package rag

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
)

// GeneralCandidate labels answers that could not be attributed to a candidate.
const GeneralCandidate = "General"

// ResponseParser splits a raw completion into per-candidate answers. It never
// fails and returns at least one record.
type ResponseParser interface {
	Parse(raw string) []models.CandidateAnswer
}

// markerRe matches "Candidato <Name>:" at the start of a line, allowing list or
// markdown decoration in front of it.
var markerRe = regexp.MustCompile(`(?m)^[ \t]*((?:[-*+>#][ \t]*|\d+[.)][ \t]+)*)Candidato[ \t]+([^:\n]+):`)

// leadRe finds the first marker wherever it sits, so a preamble sharing its
// line does not hide it.
var leadRe = regexp.MustCompile(`Candidato[ \t]+([^:\n]+):`)

type marker struct {
	start, bodyStart int
	name             string
	emphasized       bool
}

func findMarkers(raw string) []marker {
	var ms []marker
	for _, loc := range markerRe.FindAllStringSubmatchIndex(raw, -1) {
		ms = append(ms, marker{
			start:      loc[0],
			bodyStart:  loc[1],
			name:       cleanName(raw[loc[4]:loc[5]]),
			emphasized: strings.Contains(raw[loc[2]:loc[3]], "*"),
		})
	}

	lead := leadRe.FindStringSubmatchIndex(raw)
	if lead == nil || (len(ms) > 0 && ms[0].bodyStart <= lead[1]) {
		return ms
	}
	first := marker{
		start:      lead[0],
		bodyStart:  lead[1],
		name:       cleanName(raw[lead[2]:lead[3]]),
		emphasized: strings.HasSuffix(raw[:lead[0]], "*"),
	}
	return append([]marker{first}, ms...)
}

// MarkerParser reads the "Candidato <Name>: <answer>" format.
type MarkerParser struct{}

func (MarkerParser) Parse(raw string) []models.CandidateAnswer {
	// A marker with a blank name does not end the previous answer. With no
	// previous answer its text is reported as General.
	var ms []marker
	for _, m := range findMarkers(raw) {
		if m.name == "" {
			if len(ms) > 0 {
				continue
			}
			m.name = GeneralCandidate
		}
		ms = append(ms, m)
	}

	var out []models.CandidateAnswer
	for i, m := range ms {
		end := len(raw)
		if i+1 < len(ms) {
			end = ms[i+1].start
		}
		body := strings.TrimSpace(raw[m.bodyStart:end])
		if m.emphasized {
			// "**Candidato X:**" leaves the closing emphasis on the body.
			body = strings.TrimSpace(strings.TrimLeft(body, "*"))
		}
		out = append(out, models.CandidateAnswer{Candidate: m.name, Response: body})
	}

	if len(out) == 0 {
		// Covers both the explicit no-information reply and unstructured text.
		return []models.CandidateAnswer{{Candidate: GeneralCandidate, Response: strings.TrimSpace(raw)}}
	}
	return out
}

func cleanName(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_ \t"))
}

// JSONParser reads {"answers":[{"candidate","response"}]} or a bare answer
// array. Anything else goes to Fallback.
type JSONParser struct {
	Fallback ResponseParser
}

func (p JSONParser) Parse(raw string) []models.CandidateAnswer {
	body := stripFence(raw)

	var answers []models.CandidateAnswer
	var wrapped struct {
		Answers []models.CandidateAnswer `json:"answers"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err == nil && len(wrapped.Answers) > 0 {
		answers = wrapped.Answers
	} else if err := json.Unmarshal([]byte(body), &answers); err != nil {
		answers = nil
	}

	var out []models.CandidateAnswer
	for _, a := range answers {
		a.Candidate = strings.TrimSpace(a.Candidate)
		a.Response = strings.TrimSpace(a.Response)
		if a.Candidate == "" {
			a.Candidate = GeneralCandidate
		}
		out = append(out, a)
	}
	if len(out) > 0 {
		return out
	}

	fb := p.Fallback
	if fb == nil {
		fb = MarkerParser{}
	}
	return fb.Parse(raw)
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
