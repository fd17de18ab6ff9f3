package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"orgsync/backend"
	"orgsync/backend/rest"
	"orgsync/internal/cli/prompt"
	"orgsync/internal/coordinator"
	"orgsync/internal/filter"
	"orgsync/internal/resource"
	"orgsync/internal/screen"
	"orgsync/internal/utils"
)

// fieldFlag maps a command-line flag to a form value key
type fieldFlag struct {
	name    string
	key     string
	usage   string
	boolean bool
}

// kindCommands describes the subcommands of one resource kind
type kindCommands[E backend.Entity] struct {
	use     string
	aliases []string
	short   string
	pick    func(resource.Set) resource.Descriptor[E]
	flags   []fieldFlag

	// toggle adds a 'toggle' subcommand when set
	toggle func(E) (backend.Fields, func(E) E)
}

// newTasksCmd creates the 'tasks' subcommand
func newTasksCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return newKindCmd(stdout, stderr, cfg, kindCommands[backend.Task]{
		use:     "tasks",
		aliases: []string{"task", "t"},
		short:   "Manage tasks",
		pick:    func(s resource.Set) resource.Descriptor[backend.Task] { return s.Tasks },
		flags: []fieldFlag{
			{name: "title", key: "title", usage: "Task title"},
			{name: "description", key: "description", usage: "Task description"},
			{name: "date", key: "date_for", usage: "Due date (YYYY-MM-DD, today, tomorrow, +Nd, +Nw, +Nm)"},
			{name: "time", key: "time_for", usage: "Due time (HH:MM)"},
			{name: "completed", key: "completed", usage: "Mark the task completed", boolean: true},
		},
		toggle: resource.ToggleCompleted,
	})
}

// newNotesCmd creates the 'notes' subcommand
func newNotesCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return newKindCmd(stdout, stderr, cfg, kindCommands[backend.Note]{
		use:     "notes",
		aliases: []string{"note", "n"},
		short:   "Manage notes",
		pick:    func(s resource.Set) resource.Descriptor[backend.Note] { return s.Notes },
		flags: []fieldFlag{
			{name: "title", key: "title", usage: "Note title"},
			{name: "content", key: "content", usage: "Note content"},
		},
	})
}

// newExpensesCmd creates the 'expenses' subcommand
func newExpensesCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return newKindCmd(stdout, stderr, cfg, kindCommands[backend.Expense]{
		use:     "expenses",
		aliases: []string{"expense", "e"},
		short:   "Manage expenses",
		pick:    func(s resource.Set) resource.Descriptor[backend.Expense] { return s.Expenses },
		flags: []fieldFlag{
			{name: "title", key: "title", usage: "Expense title"},
			{name: "amount", key: "montant", usage: "Amount, e.g. 12.50"},
			{name: "category", key: "category", usage: "Category (" + strings.Join(resource.Expenses().Categories, ", ") + ")"},
			{name: "description", key: "description", usage: "Expense description"},
			{name: "date", key: "date", usage: "Date (default today)"},
		},
	})
}

func newKindCmd[E backend.Entity](stdout, stderr io.Writer, cfg *Config, k kindCommands[E]) *cobra.Command {
	desc := k.pick(resource.Defaults())

	cmd := &cobra.Command{
		Use:     k.use,
		Aliases: k.aliases,
		Short:   k.short,
		Long:    k.short + ". Without a subcommand the collection is listed.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				return doList(a, s, filter.Filters{})
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + string(desc.Kind),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, _ := cmd.Flags().GetString("filter")
			keyword, _ := cmd.Flags().GetString("search")
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				return doList(a, s, filter.Filters{Category: category, Keyword: keyword})
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if len(desc.Categories) > 0 {
		list.Flags().StringP("filter", "f", "", "Show only one category ("+strings.Join(append([]string{filter.All}, desc.Categories...), ", ")+")")
	}
	list.Flags().StringP("search", "s", "", "Show only entries containing this text")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Show one " + desc.Singular,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				e, err := pickEntity(a, s, args)
				if err != nil {
					return err
				}
				return doShow(a, s, e)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Create a " + desc.Singular,
		Long:  "Create a " + desc.Singular + " from flags. Without flags the fields are asked one by one.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				return doAdd(a, s, flagValues(cmd, k.flags))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addFieldFlags(add, k.flags)

	edit := &cobra.Command{
		Use:   "edit [id]",
		Short: "Edit a " + desc.Singular,
		Long:  "Replace the fields of a " + desc.Singular + ". Fields without a flag keep their current value. Without flags the fields are asked one by one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				e, err := pickEntity(a, s, args)
				if err != nil {
					return err
				}
				return doEdit(a, s, e, flagValues(cmd, k.flags))
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addFieldFlags(edit, k.flags)

	del := &cobra.Command{
		Use:     "delete [id]",
		Aliases: []string{"rm"},
		Short:   "Delete a " + desc.Singular,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
				e, err := pickEntity(a, s, args)
				if err != nil {
					return err
				}
				return doDelete(a, s, e)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(list, show, add, edit, del)

	if k.toggle != nil {
		cmd.AddCommand(&cobra.Command{
			Use:   "toggle [id]",
			Short: "Flip the completion of a " + desc.Singular,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runKind(cmd, stdout, stderr, cfg, k, func(a *app, s *screen.Session[E]) error {
					e, err := pickEntity(a, s, args)
					if err != nil {
						return err
					}
					return doToggle(a, s, e, k.toggle)
				})
			},
			SilenceUsage:  true,
			SilenceErrors: true,
		})
	}

	return cmd
}

func addFieldFlags(cmd *cobra.Command, flags []fieldFlag) {
	for _, f := range flags {
		if f.boolean {
			cmd.Flags().Bool(f.name, false, f.usage)
			continue
		}
		cmd.Flags().String(f.name, "", f.usage)
	}
}

// flagValues returns the form values of the flags given on the command line
func flagValues(cmd *cobra.Command, flags []fieldFlag) map[string]string {
	values := make(map[string]string)
	for _, f := range flags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		if f.boolean {
			v, _ := cmd.Flags().GetBool(f.name)
			values[f.key] = strconv.FormatBool(v)
			continue
		}
		values[f.key], _ = cmd.Flags().GetString(f.name)
	}
	return values
}

// runKind builds the app, checks the session and mounts one screen session
// for the duration of fn
func runKind[E backend.Entity](cmd *cobra.Command, stdout, stderr io.Writer, cfg *Config, k kindCommands[E], fn func(*app, *screen.Session[E]) error) error {
	a, err := setup(cmd, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	desc := k.pick(a.set)
	sess, err := screen.Mount(ctx, screen.Config[E]{
		Descriptor: desc,
		Client:     rest.NewResource[E](a.api, desc.BasePath),
		Notifier:   a.toasts,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	return fn(a, sess)
}

// pickEntity loads the entity named by args, or lets the user choose one
func pickEntity[E backend.Entity](a *app, s *screen.Session[E], args []string) (E, error) {
	var zero E
	desc := s.Descriptor()

	if len(args) == 1 {
		id, err := backend.ParseID(args[0])
		if err != nil {
			return zero, utils.WrapWithSuggestion(err, fmt.Sprintf("Use the numeric ID shown by 'orgsync %s list'", desc.Kind))
		}
		e, err := s.Fetch(id)
		if err != nil {
			return zero, a.explain(err, desc.Kind, id.String())
		}
		return e, nil
	}

	if a.prompter.NoPrompt() {
		return zero, utils.WrapWithSuggestion(
			fmt.Errorf("%s ID is required", desc.Singular),
			fmt.Sprintf("Pass the ID shown by 'orgsync %s list'", desc.Kind))
	}
	if err := s.Refresh(); err != nil {
		return zero, a.explain(err, desc.Kind, "")
	}

	sel := &prompt.Selector[E]{
		Items:  s.Visible(),
		Title:  "Select a " + desc.Singular + ":",
		Label:  func(e E) string { return fmt.Sprintf("#%s %s", e.GetID(), desc.Label(e)) },
		Search: desc.Filter.Searchable,
	}
	e, err := sel.Run(a.prompter)
	if errors.Is(err, prompt.ErrNoItems) {
		return zero, fmt.Errorf("no %s yet", desc.Kind)
	}
	return e, err
}

// =============================================================================
// Operations
// =============================================================================

type listResponse struct {
	Kind   string `json:"kind"`
	Items  any    `json:"items"`
	Count  int    `json:"count"`
	Result string `json:"result"`
}

func doList[E backend.Entity](a *app, s *screen.Session[E], f filter.Filters) error {
	desc := s.Descriptor()
	if err := s.SetFilters(f); err != nil {
		return err
	}
	if err := s.Refresh(); err != nil {
		return a.explain(err, desc.Kind, "")
	}
	items := s.Visible()

	if a.json {
		return writeJSON(a.stdout, listResponse{Kind: string(desc.Kind), Items: items, Count: len(items), Result: ResultInfoOnly})
	}

	if len(items) == 0 {
		if f.IsZero() {
			_, _ = fmt.Fprintf(a.stdout, "No %s yet\n", desc.Kind)
		} else {
			_, _ = fmt.Fprintf(a.stdout, "No %s match the filters\n", desc.Kind)
		}
		a.done(ResultInfoOnly)
		return nil
	}

	headers, rows := desc.Render(items)
	_, _ = fmt.Fprintln(a.stdout, renderTable(headers, rows))
	a.done(ResultInfoOnly)
	return nil
}

func renderTable(headers []string, rows [][]string) string {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.Render()
}

func doShow[E backend.Entity](a *app, s *screen.Session[E], e E) error {
	desc := s.Descriptor()
	if a.json {
		return writeJSON(a.stdout, map[string]any{"kind": string(desc.Kind), "item": e, "result": ResultInfoOnly})
	}

	values := desc.ToForm(e)
	_, _ = fmt.Fprintf(a.stdout, "%s #%s\n", capitalize(desc.Singular), e.GetID())
	for _, f := range desc.Form {
		v := values[f.Key]
		if v == "" {
			v = "-"
		}
		_, _ = fmt.Fprintf(a.stdout, "  %-12s %s\n", f.Label+":", v)
	}
	a.done(ResultInfoOnly)
	return nil
}

func doAdd[E backend.Entity](a *app, s *screen.Session[E], values map[string]string) error {
	desc := s.Descriptor()
	if len(values) == 0 && !a.prompter.NoPrompt() {
		var err error
		if values, err = a.prompter.Form(desc.Form, nil); err != nil {
			return err
		}
	}

	created, _, err := s.Create(values)
	if err != nil {
		return formFailure(a, desc, err, "")
	}

	if a.json {
		return outputActionJSON(a.stdout, "create", desc.Kind, created)
	}
	_, _ = fmt.Fprintf(a.stdout, "Created %s #%s: %s\n", desc.Singular, created.GetID(), desc.Label(created))
	a.done(ResultActionCompleted)
	return nil
}

func doEdit[E backend.Entity](a *app, s *screen.Session[E], e E, changes map[string]string) error {
	desc := s.Descriptor()
	values := desc.ToForm(e)
	if len(changes) == 0 {
		if a.prompter.NoPrompt() {
			return utils.WrapWithSuggestion(
				fmt.Errorf("nothing to change on %s #%s", desc.Singular, e.GetID()),
				fmt.Sprintf("Pass field flags, see 'orgsync %s edit --help'", desc.Kind))
		}
		var err error
		if values, err = a.prompter.Form(desc.Form, values); err != nil {
			return err
		}
	}
	for k, v := range changes {
		values[k] = v
	}

	id := e.GetID()
	updated, _, err := s.Update(id, values)
	if err != nil {
		return formFailure(a, desc, err, id.String())
	}

	if a.json {
		return outputActionJSON(a.stdout, "update", desc.Kind, updated)
	}
	_, _ = fmt.Fprintf(a.stdout, "Updated %s #%s: %s\n", desc.Singular, id, desc.Label(updated))
	a.done(ResultActionCompleted)
	return nil
}

func doDelete[E backend.Entity](a *app, s *screen.Session[E], e E) error {
	desc := s.Descriptor()
	id := e.GetID()

	ok, err := a.prompter.Confirm(fmt.Sprintf("Delete %s %q?", desc.Singular, desc.Label(e)))
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(a.stdout, "Cancelled")
		return nil
	}

	if _, err := s.Delete(id); err != nil {
		return a.explain(err, desc.Kind, id.String())
	}

	if a.json {
		return outputActionJSON(a.stdout, "delete", desc.Kind, map[string]string{"id": id.String()})
	}
	_, _ = fmt.Fprintf(a.stdout, "Deleted %s #%s: %s\n", desc.Singular, id, desc.Label(e))
	a.done(ResultActionCompleted)
	return nil
}

func doToggle[E backend.Entity](a *app, s *screen.Session[E], e E, toggle func(E) (backend.Fields, func(E) E)) error {
	desc := s.Descriptor()
	id := e.GetID()

	fields, apply := toggle(e)
	patched, _, err := s.Patch(id, fields, apply)
	if err != nil {
		return a.explain(err, desc.Kind, id.String())
	}

	if a.json {
		return outputActionJSON(a.stdout, "toggle", desc.Kind, patched)
	}
	state := "pending"
	if done, _ := fields["completed"].(bool); done {
		state = "completed"
	}
	_, _ = fmt.Fprintf(a.stdout, "Marked %s #%s %s: %s\n", desc.Singular, id, state, desc.Label(patched))
	a.done(ResultActionCompleted)
	return nil
}

// formFailure reports local validation problems and server field errors with
// the flag to fix
func formFailure[E backend.Entity](a *app, desc resource.Descriptor[E], err error, id string) error {
	var formErr *resource.FormError
	if errors.As(err, &formErr) {
		return utils.WrapWithSuggestion(err, fmt.Sprintf("See 'orgsync %s add --help' for the accepted values", desc.Kind))
	}
	if f, ok := backend.AsFailure(err); ok && f.Kind == backend.ValidationFailure && len(f.Fields) > 0 {
		return utils.WrapWithSuggestion(errors.New(coordinator.Describe(err)), "Fix the listed fields and try again")
	}
	return a.explain(err, desc.Kind, id)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
