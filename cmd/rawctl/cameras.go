package main

import (
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/spf13/cobra"
)

// camerasMarkdownTemplate renders the embedded camera database as a
// Markdown table — a handful of lines of
// text/template, no added dependency (see DESIGN.md's stdlib
// justification for this one).
const camerasMarkdownTemplate = `| Make | Model | Mode | CFA | BPS |
|------|-------|------|-----|-----|
{{- range . }}
| {{ .Make }} | {{ .Model }} | {{ .Mode }} | {{ .CFA }} | {{ .BPS }} |
{{- end }}
`

func newCamerasCommand(env *appEnv) *cobra.Command {
	var asMarkdown bool
	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List every camera in the embedded calibration database",
		Args:  noArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cams := env.cameras().All()
			sort.Slice(cams, func(i, j int) bool {
				if cams[i].Make != cams[j].Make {
					return cams[i].Make < cams[j].Make
				}
				return cams[i].Model < cams[j].Model
			})
			if asMarkdown {
				t := template.Must(template.New("cameras").Parse(camerasMarkdownTemplate))
				return t.Execute(os.Stdout, cams)
			}
			for _, c := range cams {
				fmt.Printf("%s\t%s\t%s\n", c.Make, c.Model, c.Mode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asMarkdown, "md", false, "render as a Markdown table")
	return cmd
}
