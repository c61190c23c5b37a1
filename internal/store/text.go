package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"sweetexp/internal/achievement"
	"sweetexp/internal/fileutil"
	"sweetexp/internal/logging"
)

const (
	textHeader       = "SWEETEXP_DATA_v2"
	legacyTextHeader = "SWEETENGINE_DATA_v1"
	recordPrefix     = "ACH:"
	fieldSeparator   = '|'
	recordFields     = 7
	legacyBackupExt  = ".v1.bak"
	// Longer lines are skipped as malformed.
	maxRecordBytes = 1 << 20
)

// TextStore keeps the catalog in a line-oriented text file:
//
//	SWEETEXP_DATA_v2
//	ACH:id|name|description|progress|target|unlocked|unlock_unix
//
// Backslash, '|', CR and LF inside fields are escaped. Files written with the
// older SWEETENGINE_DATA_v1 header (no escaping) are still read, and the first
// save after reading one keeps a copy of it next to the store.
type TextStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	legacy bool
}

// NewText returns a text store at path.
func NewText(path string, logger *slog.Logger) *TextStore {
	return &TextStore{path: path, logger: logging.NewComponentLogger(logger, "store")}
}

// Path returns the data file location.
func (s *TextStore) Path() string { return s.path }

// Close is a no-op; the file is only open during Load and Save.
func (s *TextStore) Close() error { return nil }

// Load reads the catalog. Malformed lines and duplicate IDs are skipped and
// at most achievement.MaxAchievements records are returned.
func (s *TextStore) Load(ctx context.Context) ([]achievement.Achievement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list, legacy, skipped, err := parseText(data)
	if err != nil {
		return nil, err
	}
	s.legacy = legacy
	if skipped > 0 {
		s.logger.Warn("skipped unreadable store records",
			logging.String(logging.FieldEventType, "store_records_skipped"),
			logging.Int("skipped", skipped),
			logging.String("path", s.path),
			logging.String(logging.FieldErrorHint, "the records will be rewritten on the next save"),
			logging.String(logging.FieldImpact, "progress for the skipped entries is lost"),
		)
	}
	return list, nil
}

// Save rewrites the whole file.
func (s *TextStore) Save(ctx context.Context, list []achievement.Achievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.legacy {
		backup := s.path + legacyBackupExt
		if _, err := os.Stat(backup); errors.Is(err, fs.ErrNotExist) {
			if err := fileutil.CopyFile(s.path, backup, 0o644); err != nil {
				s.logger.Warn("legacy store backup failed",
					logging.String(logging.FieldEventType, "store_backup_failed"),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "copy the data file manually before downgrading"),
					logging.String(logging.FieldImpact, "the v1 file is replaced without a backup"),
				)
			}
		}
	}

	err := fileutil.WriteAtomic(s.path, 0o644, func(w io.Writer) error {
		return writeText(w, list)
	})
	if err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	s.legacy = false
	return nil
}

func writeText(w io.Writer, list []achievement.Achievement) error {
	if _, err := io.WriteString(w, textHeader+"\n"); err != nil {
		return err
	}
	for _, a := range list {
		if _, err := io.WriteString(w, formatRecord(a)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func formatRecord(a achievement.Achievement) string {
	unlocked := "0"
	var unlockUnix int64
	if a.Unlocked {
		unlocked = "1"
		if !a.UnlockTime.IsZero() {
			unlockUnix = a.UnlockTime.Unix()
		}
	}
	fields := []string{
		escapeField(a.ID),
		escapeField(a.Name),
		escapeField(a.Description),
		strconv.Itoa(a.Progress),
		strconv.Itoa(a.Target),
		unlocked,
		strconv.FormatInt(unlockUnix, 10),
	}
	return recordPrefix + strings.Join(fields, string(fieldSeparator))
}

func parseText(data []byte) ([]achievement.Achievement, bool, int, error) {
	var (
		split   func(string) ([]string, bool)
		legacy  bool
		list    []achievement.Achievement
		seen    = make(map[string]struct{})
		skipped int
	)
	for raw := range bytes.Lines(data) {
		if split == nil {
			header := strings.TrimSpace(string(raw))
			switch header {
			case textHeader:
				split = splitEscaped
			case legacyTextHeader:
				split = splitLegacy
				legacy = true
			default:
				if len(header) > 64 {
					header = header[:64]
				}
				return nil, false, 0, fmt.Errorf("%w: unknown header %q", ErrCorrupt, header)
			}
			continue
		}
		if len(raw) > maxRecordBytes {
			skipped++
			continue
		}
		line := strings.TrimRight(string(raw), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(list) >= achievement.MaxAchievements {
			skipped++
			continue
		}
		if !strings.HasPrefix(line, recordPrefix) {
			skipped++
			continue
		}
		fields, ok := split(strings.TrimPrefix(line, recordPrefix))
		if !ok {
			skipped++
			continue
		}
		a, ok := parseRecord(fields)
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[a.ID]; dup {
			skipped++
			continue
		}
		seen[a.ID] = struct{}{}
		list = append(list, a)
	}
	return list, legacy, skipped, nil
}

func parseRecord(fields []string) (achievement.Achievement, bool) {
	if len(fields) != recordFields {
		return achievement.Achievement{}, false
	}
	id := strings.TrimSpace(fields[0])
	if id == "" {
		return achievement.Achievement{}, false
	}
	progress, err := strconv.Atoi(strings.TrimSpace(fields[3]))
	if err != nil || progress < 0 {
		return achievement.Achievement{}, false
	}
	target, err := strconv.Atoi(strings.TrimSpace(fields[4]))
	if err != nil || target <= 0 {
		return achievement.Achievement{}, false
	}
	var unlocked bool
	switch strings.TrimSpace(fields[5]) {
	case "1":
		unlocked = true
	case "0":
	default:
		return achievement.Achievement{}, false
	}
	unlockUnix, err := strconv.ParseInt(strings.TrimSpace(fields[6]), 10, 64)
	if err != nil || unlockUnix < 0 {
		return achievement.Achievement{}, false
	}

	a := achievement.Achievement{
		ID:          id,
		Name:        fields[1],
		Description: fields[2],
		Progress:    progress,
		Target:      target,
		Unlocked:    unlocked,
	}
	if unlocked && unlockUnix > 0 {
		a.UnlockTime = time.Unix(unlockUnix, 0).UTC()
	}
	return a, true
}

func escapeField(s string) string {
	if !strings.ContainsAny(s, "\\|\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case fieldSeparator:
			b.WriteString(`\|`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitEscaped splits on unescaped separators and decodes escapes. Unknown
// or dangling escapes make the line malformed.
func splitEscaped(s string) ([]string, bool) {
	fields := make([]string, 0, recordFields)
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return nil, false
			}
			i++
			switch s[i] {
			case '\\':
				cur.WriteByte('\\')
			case fieldSeparator:
				cur.WriteByte(fieldSeparator)
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			default:
				return nil, false
			}
		case fieldSeparator:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields, true
}

func splitLegacy(s string) ([]string, bool) {
	return strings.Split(s, string(fieldSeparator)), true
}
