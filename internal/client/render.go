package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Renderer formats answers for the terminal: markdown for prose,
// a table for star listings.
type Renderer struct {
	width int
}

// NewRenderer creates a Renderer with the default width.
func NewRenderer() *Renderer {
	return &Renderer{width: 100}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	noteStyle   = lipgloss.NewStyle().Faint(true)
)

// Render formats the answer. The markdown renderer degrades to plain
// text when the terminal profile cannot be detected.
func (r *Renderer) Render(answer *Answer) (string, error) {
	if answer == nil {
		return "", fmt.Errorf("client: answer is nil")
	}

	var out strings.Builder

	if answer.Answer != "" {
		rendered, err := renderMarkdown(answer.Answer, r.width)
		if err != nil {
			rendered = answer.Answer + "\n"
		}
		out.WriteString(rendered)
	}

	if len(answer.Stars) > 0 {
		out.WriteString(r.starTable(answer))
		out.WriteString("\n")
	}

	if answer.Fallback {
		out.WriteString(noteStyle.Render("(served by the catalog fallback, not the agent)"))
		out.WriteString("\n")
	}
	return out.String(), nil
}

func renderMarkdown(text string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(text)
}

func (r *Renderer) starTable(answer *Answer) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("SOURCE ID", "RA (deg)", "DEC (deg)", "G MAG", "DIST (deg)")

	for _, star := range answer.Stars {
		t.Row(
			strconv.FormatInt(star.SourceID, 10),
			formatDeg(star.RA),
			formatDeg(star.Dec),
			formatOptional(star.PhotGMeanMag),
			formatOptional(star.AngularDistance),
		)
	}

	caption := fmt.Sprintf("%d of %d stars", len(answer.Stars), answer.Count)
	return t.Render() + "\n" + noteStyle.Render(caption)
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
