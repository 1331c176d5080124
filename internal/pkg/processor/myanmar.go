// Package processor 文本规整：缅文 Zawgyi 检测与转 Unicode，供消息入账前统一调用。
package processor

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Zawgyi 判定启发式：
// 1. Zawgyi 专用码位集中在 U+106A..U+109F
// 2. E 元音 (U+1031) 写在声母或 Ya (U+103B) 之前
// 3. 连续堆叠的介音在 Zawgyi 里更常见
var (
	zawgyiRange   = regexp.MustCompile(`[\x{106A}-\x{109F}]`)
	eBeforeHead   = regexp.MustCompile(`\x{1031}[\x{1000}-\x{1021}]`)
	eBeforeYa     = regexp.MustCompile(`\x{1031}\x{103B}`)
	stackedMedial = regexp.MustCompile(`[\x{103A}-\x{103E}]{2,}`)
)

// zg2uniRules Zawgyi -> Unicode 的有序替换规则 (Rabbit 规则集的核心子集)。
// 顺序敏感：先换码位，再调语序。
var zg2uniRules = []struct {
	from *regexp.Regexp
	to   string
}{
	// 码位重映射
	{regexp.MustCompile(`\x{106A}`), "ဉ"},
	{regexp.MustCompile(`\x{106B}`), "ည"},
	{regexp.MustCompile(`\x{1086}`), "ဿ"},
	{regexp.MustCompile(`\x{108F}`), "န"},
	{regexp.MustCompile(`\x{1090}`), "ရ"},
	{regexp.MustCompile(`\x{1025}\x{1061}`), "ဉ္ခ"},
	{regexp.MustCompile(`\x{1088}`), "ှု"},
	{regexp.MustCompile(`\x{1089}`), "ှူ"},
	{regexp.MustCompile(`\x{103D}`), "ှ"},
	{regexp.MustCompile(`\x{103C}`), "ွ"},
	{regexp.MustCompile(`[\x{103B}\x{107E}-\x{1084}]`), "ြ"},
	{regexp.MustCompile(`\x{103A}`), "ျ"},
	{regexp.MustCompile(`\x{1039}`), "်"},
	{regexp.MustCompile(`\x{108A}`), "ွှ"},
	{regexp.MustCompile(`\x{1033}`), "ု"},
	{regexp.MustCompile(`\x{1034}`), "ူ"},
	{regexp.MustCompile(`\x{105A}`), "ါ်"},
	{regexp.MustCompile(`\x{1087}`), "ှ"},
	{regexp.MustCompile(`\x{1064}`), "င်္"},
	{regexp.MustCompile(`\x{1094}`), "့"},
	{regexp.MustCompile(`\x{1095}`), "့"},
	// 语序修正：介音 Ra 从声母前移到声母后
	{regexp.MustCompile(`\x{103C}([\x{1000}-\x{1021}])`), "$1ြ"},
	// 语序修正：E 元音从音节头移到声母(及介音)之后
	{regexp.MustCompile(`\x{1031}([\x{1000}-\x{1021}\x{103F}])([\x{103B}-\x{103E}]*)`), "$1$2ေ"},
}

// NormalizeText 规整消息文本：裁剪空白，疑似 Zawgyi 则转换为标准 Unicode，
// 最后做 NFC 归一。转换从不失败，拿不准时原样返回 (fail-open)。
func NormalizeText(input string) string {
	text := strings.TrimSpace(input)
	if text == "" {
		return text
	}

	if IsLikelyZawgyi(text) {
		text = zg2uni(text)
	}

	return norm.NFC.String(text)
}

// IsLikelyZawgyi 轻量启发式判定，无需字典
func IsLikelyZawgyi(text string) bool {
	if text == "" {
		return false
	}
	if zawgyiRange.MatchString(text) {
		return true
	}
	if eBeforeHead.MatchString(text) || eBeforeYa.MatchString(text) {
		return true
	}
	return stackedMedial.MatchString(text)
}

func zg2uni(text string) string {
	for _, rule := range zg2uniRules {
		text = rule.from.ReplaceAllString(text, rule.to)
	}
	return text
}
