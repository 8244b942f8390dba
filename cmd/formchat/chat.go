package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"
	"github.com/tbxark/formchat/engine"
	"github.com/tbxark/formchat/formgen"
	"github.com/tbxark/formchat/llm"
	"github.com/tbxark/formchat/session"
	"github.com/tbxark/formchat/store"
	"github.com/tbxark/formchat/types"
)

var (
	chatForm     string
	chatRequest  string
	chatDocument string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Fill a form interactively in the terminal",
	Long: `Fill a form interactively. The form comes from a JSON file (--form) or is
generated from a description (--request). --document grounds the conversation in
a document stored in the database.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatForm, "form", "f", "", "path to a form schema JSON file")
	chatCmd.Flags().StringVarP(&chatRequest, "request", "r", "", "describe the form to generate")
	chatCmd.Flags().StringVarP(&chatDocument, "document", "d", "", "document id to discuss")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cm, err := llm.New(ctx, conf)
	if err != nil {
		return err
	}
	form, err := loadForm(ctx, cm)
	if err != nil {
		return err
	}

	eng := newEngine(cm, nil)
	if chatDocument != "" {
		db, err := store.NewSQLiteStore(conf.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		eng = newEngine(cm, db)
	}

	s, err := eng.CreateSession(ctx, form, chatDocument)
	if err != nil {
		return err
	}
	conv := eng.NewConversation(s)
	defer conv.Close()
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: engine.NewAgent("FormFiller", "Fills "+form.Name+" through conversation", conv),
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n\n%s\n", s.Title, types.FormatFieldTable(form))

	reader := bufio.NewReader(cmd.InOrStdin())
	var input []*schema.Message
	for {
		if err := runTurn(ctx, runner, input, out); err != nil {
			return err
		}
		if conv.State() == session.StateComplete {
			fmt.Fprintf(out, "\nForm complete:\n\n%s\n", types.FormatValueTable(conv.Session().Schema))
			return nil
		}
		if conv.State() == session.StateAwaitingFirstQuestion {
			return errors.New("the model could not start the conversation")
		}
		fmt.Fprint(out, "you: ")
		line, rErr := reader.ReadString('\n')
		if rErr != nil {
			fmt.Fprintln(out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input = []*schema.Message{schema.UserMessage(line)}
	}
}

func runTurn(ctx context.Context, runner *adk.Runner, input []*schema.Message, out io.Writer) error {
	iter := runner.Run(ctx, input)
	for {
		event, ok := iter.Next()
		if !ok {
			return nil
		}
		if event.Err != nil {
			return event.Err
		}
		msg, err := event.Output.MessageOutput.GetMessage()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nassistant: %s\n", msg.Content)
		if resp, ok := event.Output.CustomizedOutput.(*engine.Response); ok && resp.Err != nil {
			fmt.Fprintf(out, "(%s)\n", resp.Metadata["error_kind"])
		}
	}
}

func loadForm(ctx context.Context, cm model.ToolCallingChatModel) (types.FormSchema, error) {
	switch {
	case chatForm != "":
		data, err := os.ReadFile(chatForm)
		if err != nil {
			return types.FormSchema{}, err
		}
		var raw types.FormSchema
		if err := sonic.Unmarshal(data, &raw); err != nil {
			return types.FormSchema{}, fmt.Errorf("parse form %s: %w", chatForm, err)
		}
		return types.NewFormSchema(raw.Name, raw.Fields)
	case chatRequest != "":
		g, err := formgen.New(cm)
		if err != nil {
			return types.FormSchema{}, err
		}
		return g.FromRequest(ctx, chatRequest)
	default:
		return types.FormSchema{}, errors.New("either --form or --request is required")
	}
}
