package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status [execution_id]",
	Short: "Get status of an execution",
	Long:  `Retrieve the lifecycle state of an execution (PENDING, RUNNING, COMPLETED, FAILED, STOPPED, ERROR), its progress, exit code and timestamps.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewDojoClient(viper.GetString("url"))
		execution, err := client.GetExecution(args[0])
		if err != nil {
			printAPIError(cmd.Printf, "Request", err)
			return
		}
		printStatus(cmd, execution)
	},
}

func printStatus(cmd *cobra.Command, execution *domain.Execution) {
	icon := statusIcon(execution.Status)
	cmd.Printf("%s %sExecution Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, execution.ID)
	cmd.Printf("%sKind:%s        %s\n", colorDim, colorReset, execution.Kind)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(execution.Status))

	progress := fmt.Sprintf("%d%%", execution.Percentage)
	if execution.TotalUnits > 0 {
		progress = fmt.Sprintf("%d/%d (%d%%)", execution.CompletedUnits, execution.TotalUnits, execution.Percentage)
	}
	cmd.Printf("%sProgress:%s    %s\n", colorDim, colorReset, progress)
	if execution.Stage != "" {
		cmd.Printf("%sStage:%s       %s\n", colorDim, colorReset, execution.Stage)
	}

	if execution.ExitCode != nil {
		exitCode := *execution.ExitCode
		if exitCode == 0 {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorGreen, exitCode, colorReset)
		} else {
			cmd.Printf("%sExit Code:%s   %s%d%s\n", colorDim, colorReset, colorRed, exitCode, colorReset)
		}
	} else {
		cmd.Printf("%sExit Code:%s   -\n", colorDim, colorReset)
	}

	if execution.ErrorMessage != "" {
		cmd.Printf("%sError:%s       %s%s%s\n", colorDim, colorReset, colorRed, execution.ErrorMessage, colorReset)
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(execution.StartedAt))

	if execution.StartedAt != nil && execution.EndedAt != nil {
		duration := execution.EndedAt.Sub(*execution.StartedAt)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(execution.EndedAt),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(execution.EndedAt))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusColor(status domain.ExecutionStatus) string {
	switch status {
	case domain.ExecutionStatusCompleted:
		return colorGreen
	case domain.ExecutionStatusFailed, domain.ExecutionStatusError:
		return colorRed
	case domain.ExecutionStatusRunning, domain.ExecutionStatusStopped:
		return colorYellow
	case domain.ExecutionStatusPending:
		return colorCyan
	default:
		return ""
	}
}

func statusIcon(status domain.ExecutionStatus) string {
	switch status {
	case domain.ExecutionStatusCompleted:
		return colorGreen + "✓" + colorReset
	case domain.ExecutionStatusFailed, domain.ExecutionStatusError:
		return colorRed + "✗" + colorReset
	case domain.ExecutionStatusRunning:
		return colorYellow + "⏳" + colorReset
	case domain.ExecutionStatusStopped:
		return colorYellow + "■" + colorReset
	case domain.ExecutionStatusPending:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status domain.ExecutionStatus) string {
	color := statusColor(status)
	if color == "" {
		return string(status)
	}
	return statusIcon(status) + " " + color + string(status) + colorReset
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
