package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const desktopTitle = "orgsync"

// desktopSink mirrors toasts to the OS notification system
type desktopSink struct {
	config   *DesktopConfig
	executor CommandExecutor
	platform string
}

// NewDesktopSink creates a sink sending toasts through notify-send, osascript
// or PowerShell depending on the platform
func NewDesktopSink(cfg *DesktopConfig, opts ...Option) Sink {
	s := &desktopSink{
		config:   cfg,
		platform: runtime.GOOS,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.executor == nil {
		s.executor = &realCommandExecutor{}
	}

	return s
}

// Send forwards the toast when its severity is enabled
func (s *desktopSink) Send(t Toast) error {
	if !s.shouldSend(t.Severity) {
		return nil
	}

	switch s.platform {
	case "linux":
		return s.executor.Execute("notify-send", desktopTitle, t.Message)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(t.Message), escapeAppleScript(desktopTitle))
		return s.executor.Execute("osascript", "-e", script)
	case "windows":
		return s.executor.Execute("powershell", "-Command", windowsScript(desktopTitle, t.Message))
	default:
		return fmt.Errorf("unsupported platform: %s", s.platform)
	}
}

// Info toasts never reach the desktop
func (s *desktopSink) shouldSend(sev Severity) bool {
	switch sev {
	case SeverityError:
		return s.config.OnError
	case SeveritySuccess:
		return s.config.OnSuccess
	default:
		return false
	}
}

// escapeAppleScript escapes backslashes and double quotes for AppleScript strings
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// escapePowerShell escapes backticks, double quotes and dollar signs
func escapePowerShell(s string) string {
	s = strings.ReplaceAll(s, "`", "``")
	s = strings.ReplaceAll(s, `"`, "`\"")
	s = strings.ReplaceAll(s, "$", "`$")
	return s
}

func windowsScript(title, msg string) string {
	return fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
$notification = New-Object System.Windows.Forms.NotifyIcon
$notification.Icon = [System.Drawing.SystemIcons]::Information
$notification.BalloonTipTitle = "%s"
$notification.BalloonTipText = "%s"
$notification.Visible = $true
$notification.ShowBalloonTip(5000)
`, escapePowerShell(title), escapePowerShell(msg))
}

// Close is a no-op
func (s *desktopSink) Close() error {
	return nil
}

type realCommandExecutor struct{}

func (e *realCommandExecutor) Execute(cmd string, args ...string) error {
	return exec.Command(cmd, args...).Run()
}
