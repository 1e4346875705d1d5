package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/models"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/schemafile"
)

type extractFlags struct {
	schema     string
	label      string
	file       string
	text       string
	structured bool
	generative bool
	threshold  float64
}

func newExtractCmd(g *globalFlags) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract schema fields from a document or text and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (f.file == "") == (f.text == "") {
				return errors.New("exactly one of --file or --text is required")
			}
			schema, err := schemafile.Load(f.schema)
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

			req := &models.ExtractionRequest{
				Label:  f.label,
				Schema: schema,
				Text:   f.text,
				Options: models.Options{
					EnableStructured: f.structured,
					EnableGenerative: f.generative,
				},
			}
			if cmd.Flags().Changed("threshold") {
				req.Options.ThresholdOverride = &f.threshold
			}

			if f.text != "" {
				result, err := rt.Service.ExtractText(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(os.Stdout, result)
			}

			upload, closeFile, err := openUpload(f.file)
			if err != nil {
				return err
			}
			defer closeFile()
			out, err := rt.Service.ExtractFile(ctx, upload, req)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, out)
		},
	}

	cmd.Flags().StringVar(&f.schema, "schema", "", "schema file (YAML or JSON) mapping field names to descriptions")
	cmd.Flags().StringVar(&f.label, "label", "", "document label, e.g. carteira_oab")
	cmd.Flags().StringVar(&f.file, "file", "", "document to read (pdf, image, html, txt)")
	cmd.Flags().StringVar(&f.text, "text", "", "inline document text")
	cmd.Flags().BoolVar(&f.structured, "structured", false, "always run structured extraction")
	cmd.Flags().BoolVar(&f.generative, "generative", false, "allow generative correction")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "confidence threshold override in [0,1]")
	cmd.MarkFlagRequired("schema")
	return cmd
}
