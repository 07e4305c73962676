package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
)

//go:embed templates/*.html
var templateFS embed.FS

var dialogTmpl = template.Must(template.ParseFS(templateFS, "templates/dialog.html"))

// Actions are the form targets the HTML dialog posts to. Empty omits the button.
type Actions struct {
	Resume   string
	StartNew string
}

type dialogData struct {
	Open           bool
	Title          string
	Body           template.HTML
	ResumeAction   string
	StartNewAction string
}

// Title is the dialog heading.
func (p Prompt) Title() string {
	if p.FormLabel == "" {
		return "Unsaved draft found"
	}
	return "Unsaved " + p.FormLabel + " draft found"
}

// Message is the dialog body as Markdown.
func (p Prompt) Message(now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A draft was saved on **%s** (%s).\n\n",
		p.FormattedTimestamp(loc), escapeMarkdown(p.Relative(now)))

	if len(p.Preview) > 0 {
		for _, f := range p.Preview {
			fmt.Fprintf(&b, "- **%s:** %s\n", escapeMarkdown(f.Label), escapeMarkdown(f.Value))
		}
		b.WriteString("\n")
	}

	b.WriteString("Resume where you left off, or start a new form? Starting new discards the draft.\n")
	return b.String()
}

// RenderHTML writes the dialog fragment.
func (p Prompt) RenderHTML(w io.Writer, now time.Time, loc *time.Location, actions Actions) error {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(p.Message(now, loc)), &body); err != nil {
		return fmt.Errorf("render prompt markdown: %w", err)
	}

	return dialogTmpl.ExecuteTemplate(w, "dialog", dialogData{
		Open:           p.IsOpen,
		Title:          p.Title(),
		Body:           template.HTML(body.String()),
		ResumeAction:   actions.Resume,
		StartNewAction: actions.StartNew,
	})
}

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFB347"}).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"})
	keyStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"})
)

// RenderTerminal renders the prompt as a bordered box for a terminal of the
// given width (0 = natural width).
func (p Prompt) RenderTerminal(now time.Time, loc *time.Location, width int) string {
	lines := []string{
		titleStyle.Render(p.Title()),
		"",
		fmt.Sprintf("Saved %s (%s)", p.FormattedTimestamp(loc), p.Relative(now)),
	}
	if len(p.Preview) > 0 {
		lines = append(lines, "")
		for _, f := range p.Preview {
			lines = append(lines, labelStyle.Render(f.Label+":")+" "+f.Value)
		}
	}
	lines = append(lines, "",
		keyStyle.Render("[r]")+" resume draft   "+keyStyle.Render("[n]")+" start new")

	style := boxStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "[", `\[`, "]", `\]`,
	"<", `\<`, ">", `\>`, "#", `\#`, "|", `\|`, "!", `\!`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
