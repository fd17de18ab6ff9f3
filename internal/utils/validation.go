package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"orgsync/backend"
)

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil if the string is not a relative date format.
func parseRelativeDate(dateStr string, now time.Time) (*time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t, nil
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil, nil // Not a relative format
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result, nil
}

// ParseDateFlag parses a date string supporting both relative and absolute formats.
// Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm
// Supported absolute format: YYYY-MM-DD
// Returns nil, nil for empty string (clear date).
func ParseDateFlag(dateStr string) (*backend.Date, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil, nil
	}

	t, err := parseRelativeDate(dateStr, time.Now())
	if err != nil {
		return nil, err
	}
	if t != nil {
		return &backend.Date{Time: *t}, nil
	}

	parsed, err := backend.ParseDate(dateStr)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	return &parsed, nil
}

// ParseTimeFlag parses HH:MM or HH:MM:SS. Returns nil, nil for empty string.
func ParseTimeFlag(timeStr string) (*backend.Clock, error) {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" {
		return nil, nil
	}
	c, err := backend.ParseClock(timeStr)
	if err != nil {
		return nil, ErrInvalidTime(timeStr)
	}
	return &c, nil
}

// ParseAmountFlag parses a non-negative decimal amount.
func ParseAmountFlag(amountStr string) (backend.Amount, error) {
	// Accept a decimal comma, as in "12,50"
	normalized := strings.ReplaceAll(strings.TrimSpace(amountStr), ",", ".")
	a, err := backend.ParseAmount(normalized)
	if err != nil || a < 0 {
		return 0, ErrInvalidAmount(amountStr)
	}
	return a, nil
}

// ParseCategoryFlag resolves an expense category from its key or display label.
func ParseCategoryFlag(s string) (backend.Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range backend.Categories {
		if strings.EqualFold(s, string(c)) || strings.EqualFold(s, c.Label()) {
			return c, nil
		}
	}
	valid := make([]string, 0, len(backend.Categories))
	for _, c := range backend.Categories {
		valid = append(valid, string(c))
	}
	return "", ErrInvalidCategory(s, valid)
}
