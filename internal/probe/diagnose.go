package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Report is the result of DiagnoseScript.
type Report struct {
	URL   string       `json:"url"`
	Title string       `json:"title"`
	Forms []FormReport `json:"forms"`
}

// FormReport describes one form and the success indicators around it.
type FormReport struct {
	Index          int               `json:"index"`
	ID             string            `json:"id"`
	Classes        string            `json:"classes"`
	Action         string            `json:"action"`
	Fields         int               `json:"fields"`
	Indicators     []IndicatorReport `json:"indicators"`
	HasWrapper     bool              `json:"hasWrapper"`
	WrapperMatches int               `json:"wrapperMatches"`
}

// IndicatorReport is one success indicator's computed style.
type IndicatorReport struct {
	Tag        string `json:"tag"`
	Classes    string `json:"classes"`
	Display    string `json:"display"`
	Visibility string `json:"visibility"`
	Opacity    string `json:"opacity"`
	Text       string `json:"text"`
	Visible    bool   `json:"visible"`
}

// ParseReport decodes the value returned by DiagnoseScript.
func ParseReport(raw []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("probe: decode diagnostic report: %w", err)
	}
	return &r, nil
}

// VisibleOnLoad reports whether any success indicator is already shown.
func (f FormReport) VisibleOnLoad() bool {
	for _, ind := range f.Indicators {
		if ind.Visible {
			return true
		}
	}
	return false
}

// Problems returns the forms with a success indicator visible on load.
func (r *Report) Problems() []FormReport {
	var out []FormReport
	for _, f := range r.Forms {
		if f.VisibleOnLoad() {
			out = append(out, f)
		}
	}
	return out
}

func orNone(s, none string) string {
	if s == "" {
		return none
	}
	return s
}

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Form diagnostic for %s\n", r.URL)
	if r.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", r.Title)
	}
	fmt.Fprintf(&b, "Found %d forms\n", len(r.Forms))

	for _, f := range r.Forms {
		fmt.Fprintf(&b, "\n== form %d ==\n", f.Index)
		fmt.Fprintf(&b, "ID:      %s\n", orNone(f.ID, "(no id)"))
		fmt.Fprintf(&b, "Classes: %s\n", orNone(f.Classes, "(no classes)"))
		fmt.Fprintf(&b, "Action:  %s\n", orNone(f.Action, "(no action)"))
		fmt.Fprintf(&b, "Fields:  %d\n", f.Fields)

		if len(f.Indicators) == 0 {
			b.WriteString("No success indicators\n")
		} else {
			fmt.Fprintf(&b, "%d success indicator(s):\n", len(f.Indicators))
			for i, ind := range f.Indicators {
				state := "hidden"
				if ind.Visible {
					state = "VISIBLE ON LOAD"
				}
				fmt.Fprintf(&b, "  %d. <%s class=%q> display=%s visibility=%s opacity=%s [%s]\n",
					i+1, strings.ToLower(ind.Tag), ind.Classes, ind.Display, ind.Visibility, ind.Opacity, state)
				if ind.Text != "" {
					fmt.Fprintf(&b, "     text: %q\n", ind.Text)
				}
			}
		}

		if f.HasWrapper {
			fmt.Fprintf(&b, "Webflow wrapper: %d done/success/block element(s)\n", f.WrapperMatches)
		}
	}

	if problems := r.Problems(); len(problems) > 0 {
		fmt.Fprintf(&b, "\n%d form(s) show a success message on load. Set the success element to Display: None in the Designer and republish.\n", len(problems))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
