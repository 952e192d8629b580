package timetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"sphexbot/internal/core"
	"sphexbot/internal/store"
)

const (
	usersKey   = "users"
	dateLayout = "2006-01-02"
	workingDay = 8 * time.Hour
)

// Record is one logged stretch of work.
type Record struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Project string `json:"project"`
	Notes   string `json:"notes"`
}

func recordsKey(user string) string { return "records:" + user }

type ledger struct {
	store store.Store
}

func (l ledger) add(ctx context.Context, user string, record Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := l.store.SetAdd(ctx, usersKey, user); err != nil {
		return err
	}
	return l.store.ListAppend(ctx, recordsKey(user), string(value))
}

func (l ledger) records(ctx context.Context, user string) ([]Record, error) {
	values, err := l.store.ListRange(ctx, recordsKey(user))
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(values))
	for _, value := range values {
		var record Record
		if err := json.Unmarshal([]byte(value), &record); err != nil {
			return nil, fmt.Errorf("decode record for %s: %w", user, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (l ledger) users(ctx context.Context) ([]string, error) {
	return l.store.SetMembers(ctx, usersKey)
}

// parseDuration turns "4h", "30m" or "1d" into seconds. A day is a
// working day.
func parseDuration(value string) (int64, error) {
	if len(value) < 2 {
		return 0, core.NewValueError("invalid duration %q", value)
	}
	amount, err := strconv.ParseInt(value[:len(value)-1], 10, 64)
	if err != nil {
		return 0, core.NewValueError("invalid duration %q", value)
	}
	var unit time.Duration
	switch value[len(value)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = workingDay
	default:
		return 0, core.NewValueError("invalid duration unit in %q", value)
	}
	seconds := int64(unit / time.Second)
	if amount < 0 || amount > math.MaxInt64/seconds {
		return 0, core.NewValueError("duration %q is out of range", value)
	}
	return amount * seconds, nil
}

// resolveDate interprets the optional "@date" of a log entry: empty for
// today, "today", "yesterday", or Y-M-D with unpadded fields allowed.
func resolveDate(named string, now time.Time) (string, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch named {
	case "", "today":
		return today.Format(dateLayout), nil
	case "yesterday":
		return today.AddDate(0, 0, -1).Format(dateLayout), nil
	}

	parts := strings.Split(named, "-")
	if len(parts) != 3 {
		return "", core.NewValueError("unknown date %q", named)
	}
	fields := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", core.NewValueError("invalid literal for date: %q", named)
		}
		fields[i] = n
	}
	year, month, day := fields[0], fields[1], fields[2]
	if year < 1 || year > 9999 {
		return "", core.NewValueError("year %d is out of range", year)
	}
	if month < 1 || month > 12 {
		return "", core.NewValueError("month must be in 1..12")
	}
	if day < 1 || day > daysIn(year, time.Month(month)) {
		return "", core.NewValueError("day is out of range for month")
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Format(dateLayout), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// fileName folds a user id into a safe gist file name:
// "jïd@domain.net/resource" becomes "jid-domain-net-resource.csv".
func fileName(user string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, user)
	if err != nil {
		folded = user
	}
	name := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(folded), "-"), "-")
	if name == "" {
		name = "anonymous"
	}
	return name + ".csv"
}
