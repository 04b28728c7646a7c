package citations

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// markerRe matches [[n]] citation markers.
var markerRe = regexp.MustCompile(`\[\[(\d+)\]\]`)

var superscripts = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

var (
	sourcesHeaderStyle = lipgloss.NewStyle().Bold(true)
	sourceURLStyle     = lipgloss.NewStyle().Faint(true)
)

// supportsSuperscript reports whether stdout is a terminal we trust to
// render Unicode superscripts.
func supportsSuperscript() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	lang := strings.ToUpper(os.Getenv("LANG") + os.Getenv("LC_ALL"))
	return strings.Contains(lang, "UTF-8") || strings.Contains(lang, "UTF8")
}

func superscript(n int) string {
	var b strings.Builder
	for _, r := range strconv.Itoa(n) {
		b.WriteRune(superscripts[r])
	}
	return b.String()
}

// Parse replaces [[n]] markers with their display form and returns the
// ordered list of referenced IDs. Unknown IDs are left to the caller to
// check via Registry.Has.
func (r *Registry) Parse(text string) (string, []int) {
	useSuper := supportsSuperscript()

	var ids []int
	clean := markerRe.ReplaceAllStringFunc(text, func(match string) string {
		id, err := strconv.Atoi(markerRe.FindStringSubmatch(match)[1])
		if err != nil || id < 1 {
			return match
		}
		ids = append(ids, id)
		if useSuper {
			return superscript(id)
		}
		return fmt.Sprintf("[%d]", id)
	})
	return clean, ids
}

// Render replaces markers like Parse and appends a Sources block listing the
// referenced citations' titles and URLs. Text with no markers is returned
// unchanged.
func (r *Registry) Render(text string) string {
	clean, ids := r.Parse(text)
	if len(ids) == 0 {
		return clean
	}

	seen := make(map[int]bool, len(ids))
	var b strings.Builder
	b.WriteString(clean)
	b.WriteString("\n\n")
	b.WriteString(sourcesHeaderStyle.Render("Sources"))
	b.WriteString("\n")
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		c := r.Get(id)
		if c == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("  [%d] %s\n      %s\n", c.ID, c.Title, sourceURLStyle.Render(c.URL)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractIDs returns the marker IDs in text without altering it.
func ExtractIDs(text string) []int {
	var ids []int
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.Atoi(m[1]); err == nil && id >= 1 {
			ids = append(ids, id)
		}
	}
	return ids
}
