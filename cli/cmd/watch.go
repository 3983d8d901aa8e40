package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satori-chatbots/chatbot-dojo-sub000/internal/domain"
)

// feedMessage is the envelope of every server message on the progress feed.
type feedMessage struct {
	Type      string            `json:"type"`
	Execution *domain.Execution `json:"execution,omitempty"`
	Event     *domain.Event     `json:"event,omitempty"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch [execution_id]",
	Short: "Follow the progress of an execution",
	Long:  `Subscribe to the live progress feed of an execution and print its events until it finishes.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewDojoClient(viper.GetString("url"))
		conn, _, err := websocket.DefaultDialer.Dial(client.WebSocketURL(args[0]), nil)
		if err != nil {
			cmd.Printf("Failed to connect: %v\n", err)
			return
		}
		defer conn.Close()

		// Trap Ctrl+C to close the socket cleanly
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-sigChan:
				conn.Close()
			case <-done:
			}
		}()

		watchFeed(cmd, conn)
	},
}

// watchFeed prints feed messages until the execution finishes or the socket closes.
func watchFeed(cmd *cobra.Command, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				cmd.Printf("Connection closed: %v\n", err)
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cmd.Printf("Ignoring malformed message: %v\n", err)
			continue
		}

		switch msg.Type {
		case "subscribed":
			if msg.Execution == nil {
				continue
			}
			cmd.Printf("Watching %s (%s) %s\n", msg.Execution.ID, msg.Execution.Kind, colorizeStatus(msg.Execution.Status))
			if msg.Execution.Status.IsTerminal() {
				return
			}
		case "event":
			if msg.Event == nil {
				continue
			}
			cmd.Println(describeEvent(msg.Event))
			if msg.Event.Type == domain.EventTypeExecutionFinished {
				return
			}
		case "error":
			cmd.Printf("%sError (%s):%s %s\n", colorRed, msg.Code, colorReset, msg.Message)
			return
		}
	}
}

func describeEvent(event *domain.Event) string {
	switch event.Type {
	case domain.EventTypeProgress, domain.EventTypeStageChanged:
		var data domain.ProgressEventData
		if json.Unmarshal(event.Payload, &data) == nil {
			if data.TotalUnits > 0 {
				return fmt.Sprintf("%s  %d/%d (%d%%)", event.Type, data.CompletedUnits, data.TotalUnits, data.Percentage)
			}
			label := data.StageLabel
			if label == "" {
				label = data.Stage
			}
			return fmt.Sprintf("%s  %s (%d%%)", event.Type, label, data.Percentage)
		}
	case domain.EventTypeExecutionFinished:
		var data domain.FinishedEventData
		if json.Unmarshal(event.Payload, &data) == nil {
			line := fmt.Sprintf("%s  %s in %.1fs", event.Type, colorizeStatus(data.Status), data.ElapsedSeconds)
			if data.Error != "" {
				line += fmt.Sprintf(" %s%s%s", colorRed, data.Error, colorReset)
			}
			return line
		}
	}
	return string(event.Type)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
