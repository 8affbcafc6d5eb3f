package review

import (
	"fmt"
	"strings"

	"github.com/whisper/modbot/internal/report"
)

// Summary renders the report for moderators.
func (r *Review) Summary() string {
	s := r.report
	target := s.Target()
	risk := s.Risk()

	var b strings.Builder
	b.WriteString("**Report ready for review**")
	if s.Auto() {
		b.WriteString(" (auto-detected)")
	}
	b.WriteString("\n")
	b.WriteString("> Message: " + target.JumpURL() + "\n")
	fmt.Fprintf(&b, "> Author: %s (%s)\n", target.AuthorName, target.AuthorID)
	b.WriteString("> Content: " + target.Content + "\n")
	if tr := risk.Translation; showTranslation(tr.SourceLang, r.displayLang, tr.Text, target.Content) {
		fmt.Fprintf(&b, "> Translated from %s: %s\n", tr.SourceLang, tr.Text)
	}
	if reason, ok := s.Reason(); ok {
		b.WriteString("> Reason: " + reason.Name + "\n")
	}
	if st, ok := s.Subtype(); ok {
		b.WriteString("> Specifics: " + st.Name + "\n")
	}
	b.WriteString("> Reporter is a minor: " + tristate(s.Minor()) + "\n")
	b.WriteString("> Nudity in context: " + yesNo(s.HasNudity()) + "\n")
	fmt.Fprintf(&b, "> Severity: %.2f\n", s.SeverityScore())
	if !s.Auto() {
		b.WriteString("> Reporter blocked user: " + tristate(s.Blocked()) + "\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func showTranslation(source, display, translated, original string) bool {
	if source == "" || translated == "" || translated == original {
		return false
	}
	return !strings.EqualFold(source, display)
}

func tristate(t report.Tristate) string {
	switch t {
	case report.Yes:
		return "Yes"
	case report.No:
		return "No"
	}
	return "Not asked"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
