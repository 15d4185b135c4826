package tmplet

import (
	"regexp"
	"strings"
)

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// a // comment only counts at the start of a line or after whitespace, so URLs survive
	reLineComment = regexp.MustCompile(`(?m)(^|[ \t])//[^\n]*`)

	literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
)

const (
	htmlCommentOpen  = "<!--"
	htmlCommentClose = "-->"
)

// stripHTMLComments removes HTML comments, including any directives inside them. Comment
// markers inside directives are left alone, and an unclosed comment is kept as text.
func stripHTMLComments(src string) string {
	if !strings.Contains(src, htmlCommentOpen) {
		return src
	}
	var b strings.Builder
	pos := 0
	for {
		comment := strings.Index(src[pos:], htmlCommentOpen)
		if comment < 0 {
			break
		}
		if open := strings.Index(src[pos:], openDelim); open >= 0 && open < comment {
			_, end, err := cutDirective(src, pos+open+len(openDelim))
			if err != nil {
				// left for Scan to report
				break
			}
			b.WriteString(src[pos:end])
			pos = end
			continue
		}
		start := pos + comment
		end := strings.Index(src[start+len(htmlCommentOpen):], htmlCommentClose)
		if end < 0 {
			break
		}
		b.WriteString(src[pos:start])
		pos = start + len(htmlCommentOpen) + end + len(htmlCommentClose)
	}
	b.WriteString(src[pos:])
	return b.String()
}

// Normalize merges adjacent literal fragments and strips comments, line breaks, tabs and the
// indentation around line breaks from them. Literals left empty are dropped. Directive
// fragments pass through untouched.
func Normalize(frags []Fragment) []Fragment {
	out := make([]Fragment, 0, len(frags))
	for _, f := range frags {
		if f.Kind == KindLiteral && len(out) > 0 && out[len(out)-1].Kind == KindLiteral {
			out[len(out)-1].Text += f.Text
			continue
		}
		out = append(out, f)
	}
	n := 0
	for _, f := range out {
		if f.Kind == KindLiteral {
			f.Text = normalizeText(f.Text)
			if f.Text == "" {
				continue
			}
		}
		out[n] = f
		n++
	}
	return out[:n]
}

func normalizeText(s string) string {
	s = reBlockComment.ReplaceAllString(s, "")
	s = reLineComment.ReplaceAllString(s, "${1}")
	s = strings.ReplaceAll(s, "\r", "")
	lines := strings.Split(s, "\n")
	last := len(lines) - 1
	for i, line := range lines {
		if i > 0 {
			line = strings.TrimLeft(line, " \t")
		}
		if i < last {
			line = strings.TrimRight(line, " \t")
		}
		lines[i] = strings.ReplaceAll(line, "\t", "")
	}
	return strings.Join(lines, "")
}

// quoteLiteral renders s as a single-quoted JavaScript string literal.
func quoteLiteral(s string) string {
	return "'" + literalEscaper.Replace(s) + "'"
}
