package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/schemafile"
)

func newLabelsCmd(g *globalFlags) *cobra.Command {
	var schemaPath, file, text string
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the field labels found in a document and the text without them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (file == "") == (text == "") {
				return errors.New("exactly one of --file or --text is required")
			}
			schema, err := schemafile.Load(schemaPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, log, err := g.runtime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()
			defer log.Sync()

			if file != "" {
				upload, closeFile, err := openUpload(file)
				if err != nil {
					return err
				}
				defer closeFile()
				doc, err := rt.Service.ReadDocument(ctx, upload)
				if err != nil {
					return err
				}
				text = doc.Text
			}

			out, err := rt.Service.DetectLabels(ctx, schema, text)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, out)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "schema file (YAML or JSON)")
	cmd.Flags().StringVar(&file, "file", "", "document to read")
	cmd.Flags().StringVar(&text, "text", "", "inline document text")
	cmd.MarkFlagRequired("schema")
	return cmd
}
