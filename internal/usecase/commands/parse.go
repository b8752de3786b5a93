package commands

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	quotedRe  = regexp.MustCompile(`"([^"]+)"`)
	mentionRe = regexp.MustCompile(`@\w+`)
	rawIDRe   = regexp.MustCompile(`\buser_\w+\b`)
)

// quoted возвращает все фрагменты в двойных кавычках.
func quoted(raw string) []string {
	matches := quotedRe.FindAllStringSubmatch(raw, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// quotedOrRest возвращает первый фрагмент в кавычках или весь текст после имени команды.
func quotedOrRest(raw string) string {
	if q := quoted(raw); len(q) > 0 {
		return q[0]
	}
	return argsText(raw)
}

// argsText возвращает текст после имени команды.
func argsText(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) <= 1 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// args возвращает слова после имени команды.
func args(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// textAfterMention возвращает текст после первого @упоминания.
func textAfterMention(raw string) string {
	loc := mentionRe.FindStringIndex(raw)
	if loc == nil {
		return ""
	}
	return cleanReason(raw[loc[1]:])
}

func cleanReason(s string) string {
	s = strings.TrimSpace(s)
	if s == "," {
		return ""
	}
	return s
}

// targetFromMentions выбирает цель по первому упоминанию или явному user_ id.
func targetFromMentions(raw string, mentions []string) string {
	if len(mentions) > 0 {
		return mentions[0]
	}
	return rawIDRe.FindString(raw)
}

// atoiDefault разбирает целое число или возвращает def.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
