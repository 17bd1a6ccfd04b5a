package providers

import (
	"context"
	"regexp"
	"strings"

	"court-intake-service/internal/models"
)

var (
	linkPattern       = regexp.MustCompile(`https?://[^\s，。；、“”"'<>）)]+`)
	caseNumberPattern = regexp.MustCompile(`[（(〔\[]\s*\d{4}\s*[）)〕\]]\s*[\p{Han}A-Za-z0-9\s]{1,40}?号`)
	versusPattern     = regexp.MustCompile(`([\p{Han}·、A-Za-z0-9]{2,60})与([\p{Han}·、A-Za-z0-9]{2,80})纠纷`)
	suesPattern       = regexp.MustCompile(`([\p{Han}·、A-Za-z0-9]{2,60})诉([\p{Han}·、A-Za-z0-9]{2,80})`)
)

var (
	deliveryKeywords = []string{"送达", "文书", "判决书", "裁定书", "传票"}
	filingKeywords   = []string{"立案", "受理"}
	leadingNoise     = []string{"您好", "关于", "原告", "被告", "申请人", "被申请人", "上诉人", "被上诉人", "申请执行人", "被执行人"}
	trailingNoise    = []string{
		"民间借贷", "金融借款", "借款合同", "买卖合同", "租赁合同", "房屋租赁", "服务合同", "建设工程",
		"劳动争议", "劳务合同", "侵权责任", "机动车交通事故", "物业服务", "股权转让", "追偿权", "保证合同",
		"离婚", "继承", "合同", "借款", "一案", "案件", "案", "等",
	}
)

// TextParser extracts structured fields from court SMS text with regular
// expressions.
type TextParser struct{}

func NewTextParser() *TextParser { return &TextParser{} }

func (p *TextParser) Parse(_ context.Context, content string) (models.ParseResult, error) {
	res := models.ParseResult{Kind: classify(content)}
	res.DownloadLinks = dedupe(linkPattern.FindAllString(content, -1))
	for _, m := range caseNumberPattern.FindAllString(content, -1) {
		res.CaseNumbers = append(res.CaseNumbers, m)
	}
	res.CaseNumbers = dedupe(res.CaseNumbers)
	res.PartyNames = PartyNames(content)
	if res.Kind == models.KindInfo && len(res.DownloadLinks) > 0 {
		res.Kind = models.KindDocumentDelivery
	}
	return res, nil
}

func classify(content string) models.Kind {
	for _, k := range deliveryKeywords {
		if strings.Contains(content, k) {
			return models.KindDocumentDelivery
		}
	}
	for _, k := range filingKeywords {
		if strings.Contains(content, k) {
			return models.KindFilingNotice
		}
	}
	return models.KindInfo
}

// PartyNames finds names in "A与B…纠纷" and "A诉B" phrases.
func PartyNames(text string) []string {
	var names []string
	for _, pattern := range []*regexp.Regexp{versusPattern, suesPattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			if strings.HasPrefix(m[2], "讼") {
				continue
			}
			names = append(names, splitParties(clean(m[1]))...)
			names = append(names, splitParties(clean(m[2]))...)
		}
		if len(names) > 0 {
			break
		}
	}
	return dedupe(names)
}

func clean(s string) string {
	return stripLeading(stripTrailing(s))
}

func stripLeading(s string) string {
	for _, n := range leadingNoise {
		if i := strings.LastIndex(s, n); i >= 0 {
			s = s[i+len(n):]
		}
	}
	return s
}

func stripTrailing(s string) string {
	cut := len(s)
	for _, n := range trailingNoise {
		if i := strings.Index(s, n); i > 0 && i < cut {
			cut = i
		}
	}
	return s[:cut]
}

func splitParties(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "、") {
		part = strings.TrimSuffix(strings.TrimSpace(part), "等")
		if len([]rune(part)) >= 2 {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
