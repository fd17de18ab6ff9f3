package cli_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"orgsync/internal/credentials"
	"orgsync/internal/testutil"
)

// =============================================================================
// CLI Tests
// These run the real command tree against an in-memory stub API server.
// =============================================================================

type itemResponse[E any] struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	Item   E      `json:"item"`
	Result string `json:"result"`
}

type listResponse[E any] struct {
	Kind   string `json:"kind"`
	Items  []E    `json:"items"`
	Count  int    `json:"count"`
	Result string `json:"result"`
}

type taskJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DateFor     string `json:"date_for"`
	TimeFor     string `json:"time_for"`
	Completed   bool   `json:"completed"`
}

type noteJSON struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type expenseJSON struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Amount      float64 `json:"montant"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
}

func addTask(t *testing.T, c *testutil.CLITest, args ...string) taskJSON {
	t.Helper()
	var resp itemResponse[taskJSON]
	c.ExecuteJSON(&resp, append([]string{"tasks", "add"}, args...)...)
	if resp.Action != "create" || resp.Item.ID == 0 {
		t.Fatalf("unexpected create response %+v", resp)
	}
	return resp.Item
}

func id(v int64) string { return fmt.Sprint(v) }

// =============================================================================
// Account Tests
// =============================================================================

// TestRegisterAndLogin verifies a new account can sign in and sees an empty collection
func TestRegisterAndLogin(t *testing.T) {
	c := testutil.NewCLITest(t)

	out := c.MustExecute("register", "alice", "--email", "alice@example.com", "--password", testutil.DefaultPassword)
	testutil.AssertContains(t, out, "Account alice created. Run 'orgsync login alice' to sign in.")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	out = c.MustExecute("login", "alice", "--password", testutil.DefaultPassword)
	testutil.AssertContains(t, out, "Logged in as alice")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	out = c.MustExecute("tasks", "list")
	testutil.AssertContains(t, out, "No tasks yet")
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)
}

// TestLoginWrongPassword verifies a refused login is explained
func TestLoginWrongPassword(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Register("alice")

	stdout, stderr := c.ExecuteAndFail("login", "alice", "--password", "wrong-password")
	testutil.AssertContains(t, stderr, "authentication failed for alice")
	testutil.AssertResultCode(t, stdout, testutil.ResultError)
}

// TestRegisterDuplicateUsername verifies server field errors reach the user
func TestRegisterDuplicateUsername(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Register("alice")

	_, stderr := c.ExecuteAndFail("register", "alice", "--email", "a@example.com", "--password", testutil.DefaultPassword)
	testutil.AssertContains(t, stderr, "already exists")
}

// TestRegisterInteractivePasswordMismatch verifies both prompts must agree
func TestRegisterInteractivePasswordMismatch(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.SetInput("first-password\nsecond-password\n")

	_, stderr := c.ExecuteAndFail("register", "alice", "--email", "alice@example.com")
	testutil.AssertContains(t, stderr, "Suggestion:")
}

// TestLoginInteractive verifies missing credentials are prompted for
func TestLoginInteractive(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Register("alice")
	c.SetInput("alice\n" + testutil.DefaultPassword + "\n")

	out := c.MustExecute("login")
	testutil.AssertContains(t, out, "Username: ")
	testutil.AssertContains(t, out, "Password: ")
	testutil.AssertContains(t, out, "Logged in as alice")
}

// TestLogoutForgetsSession verifies commands need a new login after logout
func TestLogoutForgetsSession(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	out := c.MustExecute("logout")
	testutil.AssertContains(t, out, "Logged out")

	_, stderr := c.ExecuteAndFail("tasks", "list")
	testutil.AssertContains(t, stderr, "not logged in")
}

// TestUsersDoNotShareData verifies each account sees only its own entries
func TestUsersDoNotShareData(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	addTask(t, c, "--title", "Alice's task")
	c.MustExecute("logout")

	c.Login("bob")
	out := c.MustExecute("tasks", "list")
	testutil.AssertContains(t, out, "No tasks yet")
	testutil.AssertNotContains(t, out, "Alice's task")
}

// =============================================================================
// Task Tests
// =============================================================================

// TestTaskRoundTrip verifies an update is visible to a later read
func TestTaskRoundTrip(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	created := addTask(t, c, "--title", "Buy milk", "--description", "2 litres", "--date", "2026-05-01", "--time", "09:30")
	if created.DateFor != "2026-05-01" || !strings.HasPrefix(created.TimeFor, "09:30") {
		t.Errorf("due date not stored: %+v", created)
	}

	out := c.MustExecute("tasks", "edit", id(created.ID), "--title", "Buy oat milk")
	testutil.AssertContains(t, out, "Updated task #"+id(created.ID)+": Buy oat milk")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	var shown struct {
		Item taskJSON `json:"item"`
	}
	c.ExecuteJSON(&shown, "tasks", "show", id(created.ID))
	if shown.Item.Title != "Buy oat milk" {
		t.Errorf("title = %q, want updated title", shown.Item.Title)
	}
	if shown.Item.Description != "2 litres" || shown.Item.DateFor != "2026-05-01" {
		t.Errorf("fields without a flag should keep their value, got %+v", shown.Item)
	}
}

// TestTaskListTable verifies the list renders a table with the task columns
func TestTaskListTable(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	addTask(t, c, "--title", "Buy milk")

	out := c.MustExecute("tasks", "list")
	for _, want := range []string{"ID", "DONE", "TITLE", "DUE", "REMAINING", "Buy milk", "[ ]", "no due date"} {
		testutil.AssertContains(t, out, want)
	}
	testutil.AssertResultCode(t, out, testutil.ResultInfoOnly)
}

// TestTaskAddValidatesLocally verifies invalid values are refused before sending
func TestTaskAddValidatesLocally(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("tasks", "add", "--date", "2026-05-01")
	testutil.AssertContains(t, stderr, "title: required")
	testutil.AssertContains(t, stderr, "time_for")

	out := c.MustExecute("tasks", "list")
	testutil.AssertContains(t, out, "No tasks yet")
}

// TestTaskToggle verifies completion flips and is visible to the category filter
func TestTaskToggle(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	task := addTask(t, c, "--title", "Water plants")
	addTask(t, c, "--title", "Pay rent")

	out := c.MustExecute("tasks", "toggle", id(task.ID))
	testutil.AssertContains(t, out, "Marked task #"+id(task.ID)+" completed: Water plants")

	out = c.MustExecute("tasks", "list", "--filter", "completed")
	testutil.AssertContains(t, out, "Water plants")
	testutil.AssertNotContains(t, out, "Pay rent")

	out = c.MustExecute("tasks", "list", "--filter", "Pending")
	testutil.AssertContains(t, out, "Pay rent")
	testutil.AssertNotContains(t, out, "Water plants")

	out = c.MustExecute("tasks", "toggle", id(task.ID))
	testutil.AssertContains(t, out, "pending")
}

// TestTaskListSearch verifies the keyword matches title and description case-insensitively
func TestTaskListSearch(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	addTask(t, c, "--title", "Groceries", "--description", "Milk and EGGS")
	addTask(t, c, "--title", "Dentist")

	var resp listResponse[taskJSON]
	c.ExecuteJSON(&resp, "tasks", "list", "--search", "eggs")
	if resp.Count != 1 || len(resp.Items) != 1 || resp.Items[0].Title != "Groceries" {
		t.Errorf("unexpected search result %+v", resp)
	}
	if resp.Result != testutil.ResultInfoOnly {
		t.Errorf("result = %q", resp.Result)
	}

	out := c.MustExecute("tasks", "list", "--search", "nothing-like-this")
	testutil.AssertContains(t, out, "No tasks match the filters")
}

// TestTaskListInvalidFilter verifies unknown categories list the valid ones
func TestTaskListInvalidFilter(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("tasks", "list", "--filter", "someday")
	testutil.AssertContains(t, stderr, "invalid filter for tasks: someday")
	testutil.AssertContains(t, stderr, "completed, pending")
}

// TestTaskDelete verifies a deleted task is gone from the server
func TestTaskDelete(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	task := addTask(t, c, "--title", "Old task")

	out := c.MustExecute("tasks", "delete", id(task.ID))
	testutil.AssertContains(t, out, "Deleted task #"+id(task.ID)+": Old task")
	testutil.AssertResultCode(t, out, testutil.ResultActionCompleted)

	_, stderr := c.ExecuteAndFail("tasks", "show", id(task.ID))
	testutil.AssertContains(t, stderr, "tasks not found: "+id(task.ID))
}

// TestTaskDeleteDeclined verifies answering no keeps the task
func TestTaskDeleteDeclined(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	task := addTask(t, c, "--title", "Keep me")

	c.SetInput("n\n")
	out := c.MustExecute("tasks", "delete", id(task.ID))
	testutil.AssertContains(t, out, `Delete task "Keep me"? [y/N]: `)
	testutil.AssertContains(t, out, "Cancelled")

	out = c.MustExecute("tasks", "show", id(task.ID))
	testutil.AssertContains(t, out, "Keep me")
}

// TestTaskAddInteractive verifies the fields are asked one by one without flags
func TestTaskAddInteractive(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	c.SetInput("Read a book\n\n\n\n\n")

	out := c.MustExecute("tasks", "add")
	testutil.AssertContains(t, out, "Title (required): ")
	testutil.AssertContains(t, out, ": Read a book")
}

// TestTaskShowMissing verifies unknown IDs are reported as not found
func TestTaskShowMissing(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("tasks", "show", "999")
	testutil.AssertContains(t, stderr, "tasks not found: 999")
	testutil.AssertContains(t, stderr, "orgsync tasks list")
}

// TestTaskShowInvalidID verifies non-numeric IDs are refused
func TestTaskShowInvalidID(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("tasks", "show", "abc")
	testutil.AssertContains(t, stderr, "Suggestion:")
}

// TestTaskIDRequiredWithoutPrompt verifies the selector is not used in no-prompt mode
func TestTaskIDRequiredWithoutPrompt(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	addTask(t, c, "--title", "Only one")

	_, stderr := c.ExecuteAndFail("tasks", "delete")
	testutil.AssertContains(t, stderr, "task ID is required")
}

// TestTaskEditWithoutChanges verifies edit needs field flags in no-prompt mode
func TestTaskEditWithoutChanges(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	task := addTask(t, c, "--title", "Unchanged")

	_, stderr := c.ExecuteAndFail("tasks", "edit", id(task.ID))
	testutil.AssertContains(t, stderr, "nothing to change")
}

// =============================================================================
// Note Tests
// =============================================================================

// TestNoteRoundTrip verifies notes are created, updated and deleted
func TestNoteRoundTrip(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	var created itemResponse[noteJSON]
	c.ExecuteJSON(&created, "notes", "add", "--title", "Shopping", "--content", "milk, bread")
	if created.Kind != "notes" || created.Item.Content != "milk, bread" {
		t.Fatalf("unexpected create response %+v", created)
	}
	noteID := id(created.Item.ID)

	c.MustExecute("notes", "edit", noteID, "--content", "milk, bread, eggs")

	out := c.MustExecute("notes", "show", noteID)
	testutil.AssertContains(t, out, "Note #"+noteID)
	testutil.AssertContains(t, out, "milk, bread, eggs")

	out = c.MustExecute("notes", "list", "--search", "EGGS")
	testutil.AssertContains(t, out, "Shopping")

	c.MustExecute("notes", "delete", noteID)
	out = c.MustExecute("notes", "list")
	testutil.AssertContains(t, out, "No notes yet")
}

// TestNotesHaveNoCategoryFilter verifies the filter flag is only offered where it applies
func TestNotesHaveNoCategoryFilter(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("notes", "list", "--filter", "work")
	testutil.AssertContains(t, stderr, "unknown flag")
}

// TestPaginatedList verifies the first page of a paginated server is listed
func TestPaginatedList(t *testing.T) {
	c := testutil.NewCLITestPaginated(t)
	c.Login("alice")
	c.MustExecute("notes", "add", "--title", "First")
	c.MustExecute("notes", "add", "--title", "Second")

	var resp listResponse[noteJSON]
	c.ExecuteJSON(&resp, "notes", "list")
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2: %+v", resp.Count, resp)
	}
}

// =============================================================================
// Expense Tests
// =============================================================================

// TestExpenseRoundTrip verifies amounts, categories and the default date
func TestExpenseRoundTrip(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	var created itemResponse[expenseJSON]
	c.ExecuteJSON(&created, "expenses", "add", "--title", "Lunch", "--amount", "12.50", "--category", "food")
	if created.Item.Amount != 12.5 || created.Item.Category != "food" {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.Item.Date == "" {
		t.Error("date should default to a day")
	}
	expenseID := id(created.Item.ID)

	c.MustExecute("expenses", "edit", expenseID, "--amount", "20")

	var shown struct {
		Item expenseJSON `json:"item"`
	}
	c.ExecuteJSON(&shown, "expenses", "show", expenseID)
	if shown.Item.Amount != 20 || shown.Item.Title != "Lunch" || shown.Item.Category != "food" {
		t.Errorf("unexpected expense after edit %+v", shown.Item)
	}

	out := c.MustExecute("expenses", "list", "--filter", "food")
	testutil.AssertContains(t, out, "Lunch")
	testutil.AssertContains(t, out, "Nourriture")

	out = c.MustExecute("expenses", "list", "--filter", "health")
	testutil.AssertContains(t, out, "No expenses match the filters")
}

// TestExpenseSearchMatchesAmount verifies numeric fields are searchable as text
func TestExpenseSearchMatchesAmount(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	c.MustExecute("expenses", "add", "--title", "Taxi", "--amount", "37.2", "--category", "transport")
	c.MustExecute("expenses", "add", "--title", "Bus", "--amount", "2", "--category", "transport")

	var resp listResponse[expenseJSON]
	c.ExecuteJSON(&resp, "expenses", "list", "--search", "37.2")
	if resp.Count != 1 || resp.Items[0].Title != "Taxi" {
		t.Errorf("unexpected search result %+v", resp)
	}
}

// TestExpenseInvalidCategory verifies categories are checked before sending
func TestExpenseInvalidCategory(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")

	_, stderr := c.ExecuteAndFail("expenses", "add", "--title", "Yacht", "--amount", "1", "--category", "luxury")
	testutil.AssertContains(t, stderr, "category: must be one of")
}

// =============================================================================
// Failure and Notification Tests
// =============================================================================

// TestServerUnreachable verifies network failures suggest checking the server
func TestServerUnreachable(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Config().Getenv = func(key string) string {
		if key == credentials.EnvToken {
			return "opaque-token"
		}
		return ""
	}

	_, stderr := c.ExecuteAndFail("tasks", "list", "--base-url", "http://127.0.0.1:1")
	testutil.AssertContains(t, stderr, "unreachable")
	testutil.AssertContains(t, stderr, "Suggestion:")
}

// TestNotificationLog verifies toasts are recorded and can be cleared
func TestNotificationLog(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	task := addTask(t, c, "--title", "Logged")
	c.MustExecute("tasks", "delete", id(task.ID))

	out := c.MustExecute("notifications")
	testutil.AssertContains(t, out, "[SUCCESS] Task created")
	testutil.AssertContains(t, out, "[SUCCESS] Task deleted")
	if !strings.Contains(out, time.Now().UTC().Format("2006-01-02")) {
		t.Errorf("log lines should be timestamped, got:\n%s", out)
	}

	out = c.MustExecute("notifications", "clear")
	testutil.AssertContains(t, out, "Notification log cleared")

	out = c.MustExecute("notifications")
	testutil.AssertContains(t, out, "No notifications")
}

// TestNotificationLogRecordsFailures verifies error toasts are recorded too
func TestNotificationLogRecordsFailures(t *testing.T) {
	c := testutil.NewCLITest(t)
	c.Login("alice")
	c.ExecuteAndFail("tasks", "show", "404")

	out := c.MustExecute("notifications")
	testutil.AssertContains(t, out, "[ERROR] Could not load task")
}
