package services

import (
	"regexp"
	"strconv"
	"strings"

	"mockmate-backend/internal/models"
)

// ResumeService turns an uploaded résumé document into the structured
// profile that tailors the opening problem. Extraction is heuristic and
// deterministic; the caller reviews the profile before attaching it to a
// session config.
type ResumeService struct {
	extractor *ResumeExtractor
}

func NewResumeService(extractor *ResumeExtractor) *ResumeService {
	return &ResumeService{extractor: extractor}
}

func (s *ResumeService) ProfileFromFile(filename string, data []byte) (*models.ResumeProfile, error) {
	text, err := s.extractor.ExtractText(filename, data)
	if err != nil {
		return nil, err
	}
	return ProfileFromText(text), nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	yearsPattern = regexp.MustCompile(`(?i)(\d{1,2})\+?\s*(?:years?|yrs?)`)
)

var roleTitleWords = []string{
	"engineer", "developer", "architect", "sre", "lead", "manager", "cto", "consultant",
}

var domainKeywords = []string{
	"backend", "frontend", "full-stack", "distributed systems", "microservices",
	"databases", "cloud", "aws", "gcp", "kubernetes", "devops", "machine learning",
	"data engineering", "mobile", "security", "networking",
}

// ProfileFromText scans résumé text for the signals the interview agent
// needs: contact email, years of experience, domain tags, and the most
// recent role title.
func ProfileFromText(text string) *models.ResumeProfile {
	profile := &models.ResumeProfile{}
	lower := strings.ToLower(text)

	profile.Email = emailPattern.FindString(text)

	// Take the largest years-of-experience mention; résumés often repeat
	// smaller per-technology figures.
	for _, match := range yearsPattern.FindAllStringSubmatch(text, -1) {
		if years, err := strconv.Atoi(match[1]); err == nil && years > profile.YearsExperience {
			profile.YearsExperience = years
		}
	}
	profile.ExperienceLevel = experienceLevel(profile.YearsExperience)

	for _, keyword := range domainKeywords {
		if strings.Contains(lower, keyword) {
			profile.DomainTags = append(profile.DomainTags, keyword)
		}
	}

	profile.MostRecentRole = firstRoleTitle(text)

	return profile
}

func experienceLevel(years int) string {
	switch {
	case years <= 2:
		return "junior"
	case years <= 5:
		return "mid-level"
	case years <= 10:
		return "senior"
	default:
		return "staff+"
	}
}

// firstRoleTitle returns the first short line that looks like a job title.
// Résumés conventionally list the most recent position first.
func firstRoleTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) > 60 {
			continue
		}
		lowerLine := strings.ToLower(trimmed)
		for _, word := range roleTitleWords {
			if strings.Contains(lowerLine, word) {
				return trimmed
			}
		}
	}
	return ""
}
