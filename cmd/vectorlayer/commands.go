package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/arkilian/vectorlayer/internal/app"
	lerrors "github.com/arkilian/vectorlayer/internal/errors"
	"github.com/arkilian/vectorlayer/internal/ingest"
	"github.com/arkilian/vectorlayer/internal/manifest"
	"github.com/arkilian/vectorlayer/pkg/types"
	"github.com/paulmach/orb/geojson"
)

type env struct {
	app    *app.App
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) int
}

var commands []command

func init() {
	commands = []command{
		{"import", "Import a zipped dataset into a layer", runImport},
		{"query", "Print features of a layer as JSON lines", runQuery},
		{"put", "Write features read as JSON lines from stdin", runPut},
		{"rename", "Rename a field of a layer", runRename},
		{"drop", "Delete a layer and its table", runDrop},
		{"layers", "List layers", runLayers},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (e *env) flags(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: vectorlayer %s %s\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func (e *env) parse(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

// fail reports err and returns the exit status.
func (e *env) fail(err error) int {
	fmt.Fprintf(e.stderr, "vectorlayer: %v\n", err)
	return 1
}

func (e *env) usage(fs *flag.FlagSet, msg string) int {
	fmt.Fprintf(e.stderr, "vectorlayer %s: %s\n", fs.Name(), msg)
	fs.Usage()
	return 2
}

func (e *env) emit(v interface{}) error {
	return json.NewEncoder(e.stdout).Encode(v)
}

func runImport(ctx context.Context, e *env, args []string) int {
	fs := e.flags("import", "[options] <archive>")
	layerID := fs.String("layer", "", "Layer id; empty generates one, an existing id is re-imported")
	encoding := fs.String("encoding", "", "Legacy text encoding of the dataset, e.g. cp1251")
	srid := fs.Int("srid", 0, "Target EPSG code; 0 uses the configured default")
	object := fs.Bool("object", false, "Treat the argument as a key in staging storage")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		return e.usage(fs, "exactly one archive is required")
	}

	req := ingest.Request{LayerID: *layerID, Encoding: *encoding, SRID: *srid}
	var res *ingest.Result
	var err error
	if *object {
		res, err = e.app.ImportObject(ctx, fs.Arg(0), req)
	} else {
		req.ArchivePath = fs.Arg(0)
		res, err = e.app.Import(ctx, req)
	}
	if err != nil {
		return e.fail(err)
	}

	fields := make([]fieldOut, len(res.Schema.Fields))
	for i, f := range res.Schema.Fields {
		fields[i] = fieldOut{Keyname: f.Keyname, DisplayName: f.DisplayName, Kind: f.Kind}
	}
	err = e.emit(importOut{
		LayerID:      res.LayerID,
		GeometryKind: res.Schema.GeometryKind,
		SRID:         res.Schema.SRID,
		SourceCRS:    res.SourceCRS,
		FeatureCount: res.FeatureCount,
		Revision:     res.Revision,
		Fields:       fields,
		Duration:     res.Duration.Round(time.Millisecond).String(),
	})
	if err != nil {
		return e.fail(err)
	}
	return 0
}

type fieldOut struct {
	Keyname     string          `json:"keyname"`
	DisplayName string          `json:"display_name"`
	Kind        types.FieldKind `json:"kind"`
}

type importOut struct {
	LayerID      string             `json:"layer_id"`
	GeometryKind types.GeometryKind `json:"geometry_type"`
	SRID         int                `json:"srid"`
	SourceCRS    string             `json:"source_crs"`
	FeatureCount int64              `json:"feature_count"`
	Revision     int                `json:"revision"`
	Fields       []fieldOut         `json:"fields"`
	Duration     string             `json:"duration"`
}

// filterFlag collects repeated key=value filters.
type filterFlag map[string]interface{}

func (f filterFlag) String() string { return fmt.Sprint(map[string]interface{}(f)) }

func (f filterFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("filter %q is not key=value", s)
	}
	f[k] = v
	return nil
}

type featureOut struct {
	ID       int64                  `json:"id"`
	Fields   map[string]interface{} `json:"fields"`
	Geometry *geojson.Geometry      `json:"geometry,omitempty"`
	BBox     []float64              `json:"bbox,omitempty"`
}

func runQuery(ctx context.Context, e *env, args []string) int {
	fs := e.flags("query", "-layer <id> [options]")
	layerID := fs.String("layer", "", "Layer id (required)")
	geom := fs.Bool("geom", false, "Include geometries")
	box := fs.Bool("box", false, "Include bounding boxes")
	fieldList := fs.String("fields", "", "Comma-separated fields to return; default all")
	noFields := fs.Bool("no-fields", false, "Return no attribute fields")
	limit := fs.Int("limit", -1, "Maximum number of features; -1 for no limit")
	offset := fs.Int("offset", 0, "Number of features to skip")
	like := fs.String("like", "", "Keep features whose string fields contain this text")
	intersects := fs.String("intersects", "", "GeoJSON geometry, in the layer CRS, features must intersect")
	count := fs.Bool("count", false, "Print the total match count after the features")
	filters := filterFlag{}
	fs.Var(filters, "filter", "Equality filter key=value; repeatable")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	if *layerID == "" {
		return e.usage(fs, "-layer is required")
	}

	b := e.app.Query(*layerID)
	if *geom {
		b.Geom()
	}
	if *box {
		b.Box()
	}
	switch {
	case *noFields:
		b.Fields()
	case *fieldList != "":
		b.Fields(strings.Split(*fieldList, ",")...)
	}
	if *limit >= 0 || *offset > 0 {
		n := *limit
		if n < 0 {
			n = int(^uint(0) >> 1)
		}
		b.Limit(n, *offset)
	}
	if len(filters) > 0 {
		b.FilterBy(filters)
	}
	if *like != "" {
		b.Like(*like)
	}
	if *intersects != "" {
		g, err := geojson.UnmarshalGeometry([]byte(*intersects))
		if err != nil {
			return e.usage(fs, "invalid -intersects geometry: "+err.Error())
		}
		b.Intersects(g.Geometry())
	}

	res, err := b.Execute(ctx)
	if err != nil {
		return e.fail(err)
	}
	defer res.Close()

	w := bufio.NewWriter(e.stdout)
	enc := json.NewEncoder(w)
	for res.Next() {
		f := res.Feature()
		out := featureOut{ID: f.ID, Fields: f.Fields}
		if f.Geometry != nil {
			out.Geometry = geojson.NewGeometry(f.Geometry)
		}
		if f.Box != nil {
			out.BBox = []float64{f.Box.Min[0], f.Box.Min[1], f.Box.Max[0], f.Box.Max[1]}
		}
		if err := enc.Encode(out); err != nil {
			return e.fail(err)
		}
	}
	if err := res.Err(); err != nil {
		w.Flush()
		return e.fail(err)
	}
	if *count {
		n, err := res.TotalCount(ctx)
		if err != nil {
			w.Flush()
			return e.fail(err)
		}
		if err := enc.Encode(map[string]int64{"total": n}); err != nil {
			return e.fail(err)
		}
	}
	if err := w.Flush(); err != nil {
		return e.fail(err)
	}
	return 0
}

// featureIn is one line of put input.
type featureIn struct {
	ID       int64                  `json:"id"`
	Fields   map[string]interface{} `json:"fields"`
	Geometry json.RawMessage        `json:"geometry"`
}

func (in featureIn) feature() (types.Feature, error) {
	f := types.Feature{ID: in.ID, Fields: in.Fields}
	if len(in.Geometry) > 0 && !bytes.Equal(in.Geometry, []byte("null")) {
		g, err := geojson.UnmarshalGeometry(in.Geometry)
		if err != nil {
			return f, lerrors.NewValidationError(lerrors.CodeInvalidArgument,
				fmt.Sprintf("feature %d: invalid geometry: %v", in.ID, err))
		}
		f.Geometry = g.Geometry()
	}
	return f, nil
}

func runPut(ctx context.Context, e *env, args []string) int {
	fs := e.flags("put", "-layer <id> < features.jsonl")
	layerID := fs.String("layer", "", "Layer id (required)")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	if *layerID == "" {
		return e.usage(fs, "-layer is required")
	}

	dec := json.NewDecoder(e.stdin)
	dec.UseNumber()
	var n int
	for {
		var in featureIn
		err := dec.Decode(&in)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return e.fail(lerrors.NewValidationError(lerrors.CodeInvalidArgument,
				fmt.Sprintf("line %d: %v", n+1, err)))
		}
		f, err := in.feature()
		if err != nil {
			return e.fail(err)
		}
		if err := e.app.WriteFeature(ctx, *layerID, f); err != nil {
			return e.fail(err)
		}
		n++
	}
	if err := e.emit(map[string]interface{}{"layer_id": *layerID, "written": n}); err != nil {
		return e.fail(err)
	}
	return 0
}

func runRename(ctx context.Context, e *env, args []string) int {
	fs := e.flags("rename", "-layer <id> <keyname> <new-keyname>")
	layerID := fs.String("layer", "", "Layer id (required)")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	if *layerID == "" || fs.NArg() != 2 {
		return e.usage(fs, "-layer and two field names are required")
	}
	if err := e.app.RenameField(ctx, *layerID, fs.Arg(0), fs.Arg(1)); err != nil {
		return e.fail(err)
	}
	return 0
}

func runDrop(ctx context.Context, e *env, args []string) int {
	fs := e.flags("drop", "-layer <id>")
	layerID := fs.String("layer", "", "Layer id (required)")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	if *layerID == "" {
		return e.usage(fs, "-layer is required")
	}
	if err := e.app.DeleteLayer(ctx, *layerID); err != nil {
		return e.fail(err)
	}
	return 0
}

type layerOut struct {
	LayerID      string             `json:"layer_id"`
	GeometryKind types.GeometryKind `json:"geometry_type"`
	SRID         int                `json:"srid"`
	SourceCRS    string             `json:"source_crs"`
	FeatureCount int64              `json:"feature_count"`
	Revision     int                `json:"revision"`
	Fields       []fieldOut         `json:"fields"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func newLayerOut(rec *manifest.LayerRecord) layerOut {
	fields := make([]fieldOut, len(rec.Fields))
	for i, f := range rec.Fields {
		fields[i] = fieldOut{Keyname: f.Keyname, DisplayName: f.DisplayName, Kind: f.Kind}
	}
	return layerOut{
		LayerID:      rec.LayerID,
		GeometryKind: rec.GeometryKind,
		SRID:         rec.SRID,
		SourceCRS:    rec.SourceCRS,
		FeatureCount: rec.FeatureCount,
		Revision:     rec.Revision,
		Fields:       fields,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func runLayers(ctx context.Context, e *env, args []string) int {
	fs := e.flags("layers", "")
	if code, ok := e.parse(fs, args); !ok {
		return code
	}
	layers, err := e.app.Layers(ctx)
	if err != nil {
		return e.fail(err)
	}
	for _, rec := range layers {
		if err := e.emit(newLayerOut(rec)); err != nil {
			return e.fail(err)
		}
	}
	return 0
}
