package main

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/tbxark/formchat/formgen"
	"github.com/tbxark/formchat/llm"
	"github.com/tbxark/formchat/types"
)

var generateImage string

var generateCmd = &cobra.Command{
	Use:   "generate [description]",
	Short: "Generate a form schema from a description or an image of a form",
	Example: `  formchat generate "job application with contact details and work history"
  formchat generate --image https://example.com/w9.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cm, err := llm.New(ctx, conf)
		if err != nil {
			return err
		}
		g, err := formgen.New(cm)
		if err != nil {
			return err
		}
		var form types.FormSchema
		switch {
		case generateImage != "":
			form, err = g.FromImage(ctx, generateImage)
		case len(args) == 1:
			form, err = g.FromRequest(ctx, args[0])
		default:
			return errors.New("a description or --image is required")
		}
		if err != nil {
			return err
		}
		data, err := sonic.ConfigStd.MarshalIndent(form, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateImage, "image", "", "URL or data URI of a form image")
}
