// Package prompt handles interactive prompts with no-prompt mode support.
// It provides keyword selection of an entity, yes/no confirmation, hidden
// password input and sequential form entry driven by resource form fields.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"orgsync/internal/filter"
	"orgsync/internal/resource"
	"orgsync/internal/utils"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoItems            = errors.New("no items available")
	ErrNoMatches          = errors.New("no items match the filter")
	ErrNoInput            = errors.New("no input received")
)

// TerminalReader reads a secret without echoing it
type TerminalReader interface {
	ReadPassword() (string, error)
}

type fdTerminalReader struct {
	fd int
}

func (r fdTerminalReader) ReadPassword() (string, error) {
	b, err := term.ReadPassword(r.fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StdinTerminal returns a TerminalReader over stdin, or nil when stdin is not a terminal
func StdinTerminal() TerminalReader {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return fdTerminalReader{fd: fd}
}

// Prompter reads answers line by line from one input. A single Prompter
// should serve a whole command so buffered input is not lost between prompts.
type Prompter struct {
	in       *bufio.Reader
	out      io.Writer
	noPrompt bool
	terminal TerminalReader
}

// New creates a Prompter. terminal may be nil, in which case passwords are
// read as plain lines from r.
func New(r io.Reader, w io.Writer, noPrompt bool, terminal TerminalReader) *Prompter {
	if w == nil {
		w = io.Discard
	}
	if r == nil {
		r = strings.NewReader("")
	}
	return &Prompter{in: bufio.NewReader(r), out: w, noPrompt: noPrompt, terminal: terminal}
}

// NoPrompt reports whether interactive prompts are disabled
func (p *Prompter) NoPrompt() bool {
	return p.noPrompt
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Line asks for one line of text
func (p *Prompter) Line(label string) (string, error) {
	if p.noPrompt {
		return "", ErrNoPromptMode
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	return p.readLine()
}

// Confirm asks a yes/no question. In no-prompt mode the answer is yes, since
// -y is how scripts accept destructive actions.
func (p *Prompter) Confirm(question string) (bool, error) {
	if p.noPrompt {
		return true, nil
	}
	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Password prompts for a secret with hidden input when a terminal is
// available. For non-TTY input (pipes, tests) it reads a plain line.
func (p *Prompter) Password(label string) (string, error) {
	if p.noPrompt {
		return "", ErrNoPromptMode
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	if p.terminal != nil {
		secret, err := p.terminal.ReadPassword()
		_, _ = fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return secret, nil
	}
	return p.readLine()
}

// =============================================================================
// Selection
// =============================================================================

// Selector picks one entity by narrowing with a keyword then choosing a number.
type Selector[E any] struct {
	Items  []E
	Title  string
	Label  func(E) string
	Search func(E) []string // fields matched by the keyword; Label when nil
}

// Run executes the selection prompt.
// If there is exactly one item, it is selected without asking.
func (s *Selector[E]) Run(p *Prompter) (E, error) {
	var zero E
	if p.noPrompt {
		return zero, ErrNoPromptMode
	}
	if len(s.Items) == 0 {
		return zero, ErrNoItems
	}
	if len(s.Items) == 1 {
		return s.Items[0], nil
	}

	_, _ = fmt.Fprintf(p.out, "%s\nFilter (or press Enter to show all): ", s.Title)
	keyword, err := p.readLine()
	if err != nil {
		return zero, ErrSelectionCancelled
	}

	search := s.Search
	if search == nil {
		search = func(e E) []string { return []string{s.Label(e)} }
	}
	filtered := filter.Visible(s.Items, filter.Filters{Keyword: keyword}, filter.Spec[E]{Searchable: search})
	if len(filtered) == 0 {
		return zero, ErrNoMatches
	}
	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(p.out, "Auto-selected: %s\n", s.Label(filtered[0]))
		return filtered[0], nil
	}

	for i, e := range filtered {
		_, _ = fmt.Fprintf(p.out, "  %d) %s\n", i+1, s.Label(e))
	}
	_, _ = fmt.Fprint(p.out, "Select (0 to cancel): ")
	input, err := p.readLine()
	if err != nil {
		return zero, ErrSelectionCancelled
	}

	num, err := strconv.Atoi(input)
	if err != nil {
		return zero, fmt.Errorf("invalid selection: %s", input)
	}
	if num == 0 {
		return zero, ErrSelectionCancelled
	}
	if num < 1 || num > len(filtered) {
		return zero, fmt.Errorf("selection out of range: %d", num)
	}
	return filtered[num-1], nil
}

// =============================================================================
// Forms
// =============================================================================

// Form prompts for each field in order. An empty answer keeps the value in
// current (edit mode); required fields with no value are asked again. Values
// are checked field by field so a typo is corrected before anything is sent.
func (p *Prompter) Form(fields []resource.FormField, current map[string]string) (map[string]string, error) {
	if p.noPrompt {
		return nil, ErrNoPromptMode
	}

	values := make(map[string]string, len(fields))
	for k, v := range current {
		values[k] = v
	}

	for _, f := range fields {
		for {
			_, _ = fmt.Fprint(p.out, fieldPrompt(f, values[f.Key]))
			input, err := p.readLine()
			if err != nil {
				if f.Required && values[f.Key] == "" {
					return nil, fmt.Errorf("no input for %s", strings.ToLower(f.Label))
				}
				break
			}
			if input == "" {
				if f.Required && values[f.Key] == "" {
					_, _ = fmt.Fprintf(p.out, "%s cannot be empty.\n", f.Label)
					continue
				}
				break
			}
			if msg := checkField(f, input); msg != "" {
				_, _ = fmt.Fprintln(p.out, msg)
				continue
			}
			values[f.Key] = input
			break
		}
	}
	return values, nil
}

func fieldPrompt(f resource.FormField, current string) string {
	var hints []string
	if f.Placeholder != "" {
		hints = append(hints, f.Placeholder)
	}
	switch f.Type {
	case resource.FieldBool:
		hints = append(hints, "y/n")
	case resource.FieldChoice:
		hints = append(hints, strings.Join(f.Choices, ", "))
	}
	if f.Required {
		hints = append(hints, "required")
	} else if current == "" {
		hints = append(hints, "optional")
	}

	label := f.Label
	if len(hints) > 0 {
		label += " (" + strings.Join(hints, ", ") + ")"
	}
	if current != "" {
		label += " [" + current + "]"
	}
	return label + ": "
}

// checkField returns a message for an input the field's type cannot accept
func checkField(f resource.FormField, input string) string {
	switch f.Type {
	case resource.FieldDate:
		if _, err := utils.ParseDateFlag(input); err != nil {
			return fmt.Sprintf("Invalid date: %s. Use YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm", input)
		}
	case resource.FieldTime:
		if _, err := utils.ParseTimeFlag(input); err != nil {
			return fmt.Sprintf("Invalid time: %s. Use HH:MM", input)
		}
	case resource.FieldAmount:
		if _, err := utils.ParseAmountFlag(input); err != nil {
			return fmt.Sprintf("Invalid amount: %s. Use a non-negative number like 12.50", input)
		}
	case resource.FieldBool:
		if _, ok := resource.ParseBool(input); !ok {
			return "Please answer yes or no"
		}
	case resource.FieldChoice:
		for _, c := range f.Choices {
			if strings.EqualFold(c, input) {
				return ""
			}
		}
		return fmt.Sprintf("Invalid choice: %s. Valid options: %s", input, strings.Join(f.Choices, ", "))
	}
	return ""
}
