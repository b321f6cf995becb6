package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/chazu/asmdoc/pkg/asm"
	"github.com/chazu/asmdoc/pkg/engine"
	"github.com/chazu/asmdoc/pkg/exchange/glb"
	"github.com/chazu/asmdoc/pkg/exchange/step"
	"github.com/chazu/asmdoc/pkg/host"
	"github.com/chazu/asmdoc/pkg/structdef"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type format int

const (
	formatUnknown format = iota
	formatGLB
	formatSTEP
)

// outputFormat picks the export format from a file name.
func outputFormat(path string) format {
	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(name) {
	case ".glb":
		return formatGLB
	case ".stp", ".step":
		return formatSTEP
	}
	return formatUnknown
}

// commandContext bounds a command by --timeout and interrupt signals.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// newHost builds a host from the loaded config. output names the file a
// STEP export is written to, if any.
func newHost(cmd *cobra.Command, output string) *host.Host {
	compress := cfg.Export.Compress || strings.HasSuffix(strings.ToLower(output), ".gz")
	if f := cmd.Flags().Lookup("compress"); f != nil && f.Changed {
		compress = f.Value.String() == "true"
	}
	mesh := glb.Options{
		MeshDeflection: cfg.Mesh.Deflection,
		MeshAngle:      cfg.Mesh.Angle,
		MergeFaces:     cfg.Mesh.MergeFaces,
		ForceUVExport:  cfg.Mesh.ForceUVExport,
	}
	if v, err := cmd.Flags().GetBool("merge-faces"); err == nil && v {
		mesh.MergeFaces = true
	}
	if v, err := cmd.Flags().GetBool("uv"); err == nil && v {
		mesh.ForceUVExport = true
	}

	return host.New(
		host.WithLogger(logger),
		host.WithEngine(engine.NewEngine(
			engine.WithTimeout(cfg.GetScriptTimeout()),
			engine.WithLogger(logger),
		)),
		host.WithSTEP(step.Header{
			Author:       cfg.Export.Author,
			Organization: cfg.Export.Organization,
			FileName:     filepath.Base(output),
		}, step.Options{Compress: compress}),
		host.WithMesh(mesh),
	)
}

// openInput loads path into a new document of h.
func openInput(ctx context.Context, h *host.Host, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	var def *structdef.Definition
	switch filepath.Ext(name) {
	case ".stp", ".step":
		return h.OpenSTEP(data)
	case ".json":
		def, err = structdef.ParseJSON(data)
	case ".yaml", ".yml":
		def, err = structdef.ParseYAML(data)
	case ".lisp", ".asm":
		return openScript(ctx, h, path, string(data))
	default:
		return "", fmt.Errorf("unrecognized input type: %s", path)
	}
	if err != nil {
		return "", err
	}

	id := h.Open()
	if _, err := h.Apply(ctx, id, def); err != nil {
		return "", multierr.Append(err, h.Close(id))
	}
	return id, nil
}

func openScript(ctx context.Context, h *host.Host, path, source string) (string, error) {
	id := h.Open()
	res := h.Evaluate(ctx, id, source)
	if len(res.Errors) == 0 {
		logger.Debug("evaluated script", zap.String("path", path), zap.Int("meshes", len(res.Meshes)))
		return id, nil
	}
	var errs error
	for _, e := range res.Errors {
		if e.Line > 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s:%d: %s", path, e.Line, e.Message))
		} else {
			errs = multierr.Append(errs, fmt.Errorf("%s: %s", path, e.Message))
		}
	}
	return "", multierr.Append(errs, h.Close(id))
}

// writeOutput exports the document to path in the format its name implies.
func writeOutput(ctx context.Context, h *host.Host, id, path string, want format) error {
	if want == formatUnknown {
		want = outputFormat(path)
	}
	var data []byte
	var err error
	switch want {
	case formatGLB:
		data, err = h.ExportGLB(ctx, id)
	case formatSTEP:
		data, err = h.ExportSTEP(ctx, id)
	default:
		return fmt.Errorf("unrecognized output type: %s", path)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Info("wrote document", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// withDocument opens args[0] and runs fn on it.
func withDocument(cmd *cobra.Command, input, output string, fn func(context.Context, *host.Host, string) error) error {
	ctx, cancel := commandContext()
	defer cancel()

	h := newHost(cmd, output)
	id, err := openInput(ctx, h, input)
	if err != nil {
		return multierr.Append(err, h.Shutdown())
	}
	return multierr.Append(fn(ctx, h, id), h.Shutdown())
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func runBuild(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	return withDocument(cmd, args[0], output, func(ctx context.Context, h *host.Host, id string) error {
		parts, err := h.Parts(ctx, id)
		if err != nil {
			return err
		}
		printParts(cmd.OutOrStdout(), parts)
		if output == "" {
			return nil
		}
		return writeOutput(ctx, h, id, output, formatUnknown)
	})
}

func runParts(cmd *cobra.Command, args []string) error {
	return withDocument(cmd, args[0], "", func(ctx context.Context, h *host.Host, id string) error {
		parts, err := h.Parts(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), parts)
		}
		printParts(cmd.OutOrStdout(), parts)
		return nil
	})
}

func runInspect(cmd *cobra.Command, args []string) error {
	return withDocument(cmd, args[0], "", func(ctx context.Context, h *host.Host, id string) error {
		out := cmd.OutOrStdout()
		if len(args) == 2 {
			info, err := h.LabelInfo(ctx, id, args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, info)
			}
			printLabel(out, info)
			return nil
		}

		hier, err := h.Hierarchy(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, hier)
		}
		for _, n := range hier.Nodes {
			kind := "part"
			switch {
			case n.IsAssembly:
				kind = "assembly"
			case n.IsInstance:
				kind = "instance"
			}
			fmt.Fprintf(out, "%s%s [%s] %s\n", strings.Repeat("  ", n.Depth), n.Name, n.Label, kind)
		}
		return nil
	})
}

func runExport(f format) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withDocument(cmd, args[0], args[1], func(ctx context.Context, h *host.Host, id string) error {
			return writeOutput(ctx, h, id, args[1], f)
		})
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func printParts(w io.Writer, parts []asm.PartSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tNAME\tTYPE\tINSTANCES\tCOLOR")
	for _, p := range parts {
		color := "-"
		if p.Color != nil {
			color = fmt.Sprintf("%.3g,%.3g,%.3g,%.3g", p.Color.R, p.Color.G, p.Color.B, p.Color.A)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Label, p.Name, p.Type, p.InstanceCount, color)
	}
	_ = tw.Flush()
}

func printLabel(w io.Writer, info asm.LabelInfo) {
	fmt.Fprintf(w, "label:       %s\n", info.Label)
	fmt.Fprintf(w, "name:        %s\n", info.Name)
	fmt.Fprintf(w, "kind:        %s\n", info.Kind)
	if info.PartLabel != "" {
		fmt.Fprintf(w, "part:        %s (%s)\n", info.PartLabel, info.PartName)
	}
	if info.Color.HasColor {
		fmt.Fprintf(w, "color:       %g %g %g %g\n", info.Color.R, info.Color.G, info.Color.B, info.Color.A)
	}
	t := info.Transform
	fmt.Fprintf(w, "translation: %g %g %g\n", t.Translation[0], t.Translation[1], t.Translation[2])
	fmt.Fprintf(w, "rotation:    %g %g %g %g\n", t.Quaternion[0], t.Quaternion[1], t.Quaternion[2], t.Quaternion[3])
	fmt.Fprintf(w, "scale:       %g %g %g\n", t.Scale[0], t.Scale[1], t.Scale[2])
	for _, c := range info.Children {
		fmt.Fprintf(w, "child:       %s\n", c)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
