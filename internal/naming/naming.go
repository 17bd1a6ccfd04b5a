package naming

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

var ErrNoTitle = errors.New("no title could be derived")

// Document kinds recognised in file names, longest first so that
// 民事判决书 wins over 判决书.
var documentKinds = []string{
	"应诉通知书", "举证通知书", "受理通知书", "缴费通知书", "开庭传票",
	"民事判决书", "民事裁定书", "刑事判决书", "刑事裁定书", "行政判决书", "行政裁定书",
	"民事调解书", "执行裁定书", "执行通知书",
	"起诉状", "上诉状", "答辩状", "判决书", "裁定书", "调解书", "决定书", "通知书", "传票",
}

// Service proposes display titles and collision-free file names.
type Service struct{}

func New() *Service { return &Service{} }

// ProposeTitle derives a display title from the downloaded file name.
func (s *Service) ProposeTitle(_ context.Context, path string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, kind := range documentKinds {
		if strings.Contains(base, kind) {
			return kind, nil
		}
	}
	title := FallbackTitle(path)
	if title == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoTitle)
	}
	return title, nil
}

// FallbackTitle cleans the original file name for use as a title.
func FallbackTitle(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimLeftFunc(base, func(r rune) bool {
		return unicode.IsDigit(r) || r == '_' || r == '-' || r == ' '
	})
	return sanitize(base)
}

// Filename builds "title（case name）YYYYMMDD.ext" inside dir. When the name is
// taken, _1, _2, … is inserted before the extension.
func (s *Service) Filename(title, caseName string, date time.Time, dir, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	stem := sanitize(title)
	if stem == "" {
		stem = "文书"
	}
	if c := sanitize(caseName); c != "" {
		stem += "（" + c + "）"
	}
	stem += date.Format("20060102")

	candidate := filepath.Join(dir, stem+ext)
	for i := 1; exists(candidate); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return candidate
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " ._")
}
