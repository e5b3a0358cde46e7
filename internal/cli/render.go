package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/internal/render"
)

func newRenderCmd(a *app) *cobra.Command {
	var dpi int

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Rasterize every page of every discovered PDF into the image cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dpi > 0 {
				a.cfg.Render.DPI = dpi
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			docs, _, err := a.discover(cmd.Context())
			if err != nil {
				return err
			}

			r := a.renderer()
			var reqs []render.Request
			for _, d := range docs {
				for p := 0; p < r.PageLimit(d); p++ {
					reqs = append(reqs, render.Request{Document: d, Page: p})
				}
			}
			res := r.RenderBatch(cmd.Context(), reqs)

			fmt.Fprintf(a.out, "pages: %d rendered (%d from cache), %d failed\n",
				len(res.Pages), res.Hits, len(res.Failures))
			for _, f := range res.Failures {
				fmt.Fprintf(a.out, "  %v\n", f)
			}
			fmt.Fprintf(a.out, "cache: %s\n", a.cfg.Render.CacheDir)
			return cmd.Context().Err()
		},
	}
	cmd.Flags().IntVar(&dpi, "dpi", 0, "render resolution (overrides config)")
	return cmd
}

func (a *app) renderer() *render.Renderer {
	return render.NewRenderer(render.Config{
		Pdftoppm: a.cfg.Render.Pdftoppm,
		DPI:      a.cfg.Render.DPI,
		MaxPages: a.cfg.Render.MaxPages,
		CacheDir: a.cfg.Render.CacheDir,
		Workers:  a.cfg.Render.Workers,
	}, a.logger)
}
