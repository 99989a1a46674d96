package main

import (
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/spf13/cobra"
)

const lensesMarkdownTemplate = `| Make | Model | Mount | Focal range | Aperture range |
|------|-------|-------|-------------|-----------------|
{{- range . }}
| {{ .LensMake }} | {{ .LensModel }} | {{ .Mount }} | {{ index .FocalRange 0 }}-{{ index .FocalRange 1 }} | {{ index .ApertureRange 0 }}-{{ index .ApertureRange 1 }} |
{{- end }}
`

func newLensesCommand(env *appEnv) *cobra.Command {
	var asMarkdown bool
	cmd := &cobra.Command{
		Use:   "lenses",
		Short: "List every lens in the embedded lens database",
		Args:  noArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			lenses := env.lenses()
			sort.Slice(lenses, func(i, j int) bool {
				if lenses[i].LensMake != lenses[j].LensMake {
					return lenses[i].LensMake < lenses[j].LensMake
				}
				return lenses[i].LensModel < lenses[j].LensModel
			})
			if asMarkdown {
				t := template.Must(template.New("lenses").Parse(lensesMarkdownTemplate))
				return t.Execute(os.Stdout, lenses)
			}
			for _, l := range lenses {
				fmt.Printf("%s\t%s\t%s\n", l.LensMake, l.LensModel, l.Mount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asMarkdown, "md", false, "render as a Markdown table")
	return cmd
}
