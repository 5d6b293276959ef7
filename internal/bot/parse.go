package bot

import (
	"fmt"
	"strconv"
	"strings"

	"schedule_bot/internal/model"
)

// ParseLeadArg extracts the reminder lead time in minutes.
func ParseLeadArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	minutes, err := strconv.Atoi(s)
	if err != nil || minutes < 1 || minutes > 120 {
		return 0, fmt.Errorf("lead time must be between 1 and 120 minutes")
	}
	return minutes, nil
}

// ParseIntervalArg extracts the monitor check interval in minutes.
func ParseIntervalArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("usage: /interval <minutes>")
	}
	minutes, err := strconv.Atoi(s)
	if err != nil || minutes < 1 || minutes > 1440 {
		return 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
	}
	return minutes, nil
}

// ParseFormatArg maps a /format argument to a delivery format.
func ParseFormatArg(args string) (model.Format, error) {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "photo":
		return model.FormatPhoto, nil
	case "document", "file", "pdf":
		return model.FormatDocument, nil
	default:
		return "", fmt.Errorf("unknown format %q, use photo or document", args)
	}
}
